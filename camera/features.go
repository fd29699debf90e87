package camera

import (
	"fmt"

	"github.com/visionkit/gencam/pkg"
)

// Feature names forwarded to the device's generic feature registry.
const (
	featExposure          = "ExposureTime"
	featGain              = "Gain"
	featFrameRate         = "AcquisitionFrameRate"
	featFrameRateEnable   = "AcquisitionFrameRateEnable"
	featWidth             = "Width"
	featHeight            = "Height"
	featOffsetX           = "OffsetX"
	featOffsetY           = "OffsetY"
	featSensorWidth       = "SensorWidth"
	featSensorHeight      = "SensorHeight"
	featBinningHorizontal = "BinningHorizontal"
	featBinningVertical   = "BinningVertical"
	featBinningHMode      = "BinningHorizontalMode"
	featBinningVMode      = "BinningVerticalMode"
	featReverseX          = "ReverseX"
	featReverseY          = "ReverseY"
	featPixelFormat       = "PixelFormat"
	featSensorBitDepth    = "SensorBitDepth"
	featTemperature       = "DeviceTemperature"
	featTemperatureSrc    = "DeviceTemperatureSelector"
	featIndicatorMode     = "DeviceIndicatorMode"
	featIndicatorLuma     = "DeviceIndicatorLuminance"
	featTriggerLine       = "LineSelector"
	featLineMode          = "LineMode"
	featLineSource        = "LineSource"
	featLineInverter      = "LineInverter"
	featLineDebounceMode  = "LineDebounceMode"
	featLineDebounceTime  = "LineDebounceDuration"
	featThroughputLimit   = "DeviceLinkThroughputLimit"
	featLinkSpeed         = "DeviceLinkSpeed"
)

// requireIdleLocked rejects operations that need a quiesced device.
func (c *Camera) requireIdleLocked() error {
	if c.streaming || c.acquiring {
		return pkg.ErrBusy
	}
	return nil
}

// locked runs fn under the control mutex after the open check.
func (c *Camera) locked(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	return fn()
}

func (c *Camera) getFloat(name string) (v float64, err error) {
	err = c.locked(func() error {
		v, err = c.dev.GetFloat(name)
		return err
	})
	return v, err
}

func (c *Camera) setFloat(name string, v float64) error {
	return c.locked(func() error {
		return c.dev.SetFloat(name, v)
	})
}

func (c *Camera) getInt(name string) (v int64, err error) {
	err = c.locked(func() error {
		v, err = c.dev.GetInt(name)
		return err
	})
	return v, err
}

func (c *Camera) getBool(name string) (v bool, err error) {
	err = c.locked(func() error {
		v, err = c.dev.GetBool(name)
		return err
	})
	return v, err
}

func (c *Camera) setBool(name string, v bool) error {
	return c.locked(func() error {
		return c.dev.SetBool(name, v)
	})
}

func (c *Camera) getEnum(name string) (v string, err error) {
	err = c.locked(func() error {
		v, err = c.dev.GetEnum(name)
		return err
	})
	return v, err
}

func (c *Camera) setEnum(name, v string) error {
	return c.locked(func() error {
		return c.dev.SetEnum(name, v)
	})
}

func (c *Camera) enumEntries(name string) (entries []string, available []bool, err error) {
	err = c.locked(func() error {
		entries, available, err = c.dev.EnumEntries(name)
		return err
	})
	return entries, available, err
}

func (c *Camera) floatRange(name string) (min, max, step float64, err error) {
	err = c.locked(func() error {
		min, max, step, err = c.dev.FloatRange(name)
		return err
	})
	return min, max, step, err
}

// Exposure returns the exposure time in microseconds.
func (c *Camera) Exposure() (float64, error) {
	return c.getFloat(featExposure)
}

// SetExposure sets the exposure time in microseconds.
func (c *Camera) SetExposure(us float64) error {
	if us <= 0 {
		return fmt.Errorf("%w: exposure %v", pkg.ErrBadParameter, us)
	}
	return c.setFloat(featExposure, us)
}

// ExposureRange returns the exposure limits and increment in
// microseconds.
func (c *Camera) ExposureRange() (min, max, step float64, err error) {
	return c.floatRange(featExposure)
}

// Gain returns the analog gain in dB.
func (c *Camera) Gain() (float64, error) {
	return c.getFloat(featGain)
}

// SetGain sets the analog gain in dB.
func (c *Camera) SetGain(db float64) error {
	if db < 0 {
		return fmt.Errorf("%w: gain %v", pkg.ErrBadParameter, db)
	}
	return c.setFloat(featGain, db)
}

// GainRange returns the gain limits and increment in dB.
func (c *Camera) GainRange() (min, max, step float64, err error) {
	return c.floatRange(featGain)
}

// FrameRate returns the acquisition frame rate in Hz.
func (c *Camera) FrameRate() (float64, error) {
	return c.getFloat(featFrameRate)
}

// SetFrameRate sets the acquisition frame rate in Hz.
func (c *Camera) SetFrameRate(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: frame rate %v", pkg.ErrBadParameter, hz)
	}
	return c.setFloat(featFrameRate, hz)
}

// FrameRateRange returns the frame rate limits and increment in Hz.
func (c *Camera) FrameRateRange() (min, max, step float64, err error) {
	return c.floatRange(featFrameRate)
}

// FrameRateAuto reports whether the device paces acquisition itself.
func (c *Camera) FrameRateAuto() (bool, error) {
	v, err := c.getBool(featFrameRateEnable)
	return !v, err
}

// SetFrameRateAuto toggles device-paced acquisition. Disabling auto
// pacing enables the manual frame rate feature.
func (c *Camera) SetFrameRateAuto(auto bool) error {
	return c.setBool(featFrameRateEnable, !auto)
}

// SensorSize returns the full sensor geometry in pixels.
func (c *Camera) SensorSize() (width, height int64, err error) {
	err = c.locked(func() error {
		if width, err = c.dev.GetInt(featSensorWidth); err != nil {
			return err
		}
		height, err = c.dev.GetInt(featSensorHeight)
		return err
	})
	return width, height, err
}

// ImageSize returns the configured image geometry in pixels.
func (c *Camera) ImageSize() (width, height int64, err error) {
	err = c.locked(func() error {
		if width, err = c.dev.GetInt(featWidth); err != nil {
			return err
		}
		height, err = c.dev.GetInt(featHeight)
		return err
	})
	return width, height, err
}

// SetImageSize sets the image geometry and rebuilds the frame pool to
// the new payload size. The device must not be capturing.
func (c *Camera) SetImageSize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: image size %dx%d", pkg.ErrBadParameter, width, height)
	}
	return c.locked(func() error {
		if err := c.requireIdleLocked(); err != nil {
			return err
		}
		if err := c.dev.SetInt(featWidth, int64(width)); err != nil {
			return err
		}
		if err := c.dev.SetInt(featHeight, int64(height)); err != nil {
			return err
		}
		return c.reallocateIfNeededLocked(uint32(len(c.pool.frames)))
	})
}

// ImageOffset returns the image region offset in pixels.
func (c *Camera) ImageOffset() (x, y int64, err error) {
	err = c.locked(func() error {
		if x, err = c.dev.GetInt(featOffsetX); err != nil {
			return err
		}
		y, err = c.dev.GetInt(featOffsetY)
		return err
	})
	return x, y, err
}

// SetImageOffset moves the image region. The payload size does not
// change, so the pool is left alone.
func (c *Camera) SetImageOffset(x, y uint32) error {
	return c.locked(func() error {
		if err := c.dev.SetInt(featOffsetX, int64(x)); err != nil {
			return err
		}
		return c.dev.SetInt(featOffsetY, int64(y))
	})
}

// BinningMode returns the pixel combination mode.
func (c *Camera) BinningMode() (string, error) {
	return c.getEnum(featBinningHMode)
}

// SetBinningMode sets the pixel combination mode on both axes.
func (c *Camera) SetBinningMode(mode string) error {
	return c.locked(func() error {
		if err := c.dev.SetEnum(featBinningHMode, mode); err != nil {
			return err
		}
		return c.dev.SetEnum(featBinningVMode, mode)
	})
}

// BinningFactor returns the binning factor. Horizontal and vertical
// binning are always set together; a mismatch read back from the
// device is reported as a device fault.
func (c *Camera) BinningFactor() (int64, error) {
	var factor int64
	err := c.locked(func() error {
		h, err := c.dev.GetInt(featBinningHorizontal)
		if err != nil {
			return err
		}
		v, err := c.dev.GetInt(featBinningVertical)
		if err != nil {
			return err
		}
		if h != v {
			return fmt.Errorf("%w: binning mismatch h=%d v=%d", pkg.ErrDeviceFault, h, v)
		}
		factor = h
		return nil
	})
	return factor, err
}

// SetBinningFactor sets the binning factor on both axes and rebuilds
// the frame pool to the new payload size. The device must not be
// capturing.
func (c *Camera) SetBinningFactor(factor uint32) error {
	if factor == 0 {
		return fmt.Errorf("%w: zero binning factor", pkg.ErrBadParameter)
	}
	return c.locked(func() error {
		if err := c.requireIdleLocked(); err != nil {
			return err
		}
		if err := c.dev.SetInt(featBinningHorizontal, int64(factor)); err != nil {
			return err
		}
		if err := c.dev.SetInt(featBinningVertical, int64(factor)); err != nil {
			return err
		}
		return c.reallocateIfNeededLocked(uint32(len(c.pool.frames)))
	})
}

// ImageFlip returns the readout mirror configuration.
func (c *Camera) ImageFlip() (flipX, flipY bool, err error) {
	err = c.locked(func() error {
		if flipX, err = c.dev.GetBool(featReverseX); err != nil {
			return err
		}
		flipY, err = c.dev.GetBool(featReverseY)
		return err
	})
	return flipX, flipY, err
}

// SetImageFlip sets the readout mirror configuration.
func (c *Camera) SetImageFlip(flipX, flipY bool) error {
	return c.locked(func() error {
		if err := c.dev.SetBool(featReverseX, flipX); err != nil {
			return err
		}
		return c.dev.SetBool(featReverseY, flipY)
	})
}

// PixelFormat returns the configured pixel format.
func (c *Camera) PixelFormat() (string, error) {
	return c.getEnum(featPixelFormat)
}

// SetPixelFormat sets the pixel format and rebuilds the frame pool to
// the new payload size. The device must not be capturing.
func (c *Camera) SetPixelFormat(format string) error {
	return c.locked(func() error {
		if err := c.requireIdleLocked(); err != nil {
			return err
		}
		if err := c.dev.SetEnum(featPixelFormat, format); err != nil {
			return err
		}
		return c.reallocateIfNeededLocked(uint32(len(c.pool.frames)))
	})
}

// PixelFormats returns the device's pixel formats and, per entry,
// whether it is currently selectable.
func (c *Camera) PixelFormats() (formats []string, available []bool, err error) {
	return c.enumEntries(featPixelFormat)
}

// SensorBitDepth returns the configured sensor bit depth.
func (c *Camera) SensorBitDepth() (string, error) {
	return c.getEnum(featSensorBitDepth)
}

// SetSensorBitDepth sets the sensor bit depth. The device must not be
// capturing.
func (c *Camera) SetSensorBitDepth(depth string) error {
	return c.locked(func() error {
		if err := c.requireIdleLocked(); err != nil {
			return err
		}
		return c.dev.SetEnum(featSensorBitDepth, depth)
	})
}

// SensorBitDepths returns the selectable sensor bit depths.
func (c *Camera) SensorBitDepths() (depths []string, available []bool, err error) {
	return c.enumEntries(featSensorBitDepth)
}

// Temperature returns the selected temperature sensor reading in
// degrees Celsius.
func (c *Camera) Temperature() (float64, error) {
	return c.getFloat(featTemperature)
}

// TemperatureSource returns the selected temperature sensor.
func (c *Camera) TemperatureSource() (string, error) {
	return c.getEnum(featTemperatureSrc)
}

// SetTemperatureSource selects the temperature sensor to read.
func (c *Camera) SetTemperatureSource(src string) error {
	return c.setEnum(featTemperatureSrc, src)
}

// TemperatureSources returns the device's temperature sensors.
func (c *Camera) TemperatureSources() (srcs []string, available []bool, err error) {
	return c.enumEntries(featTemperatureSrc)
}

// IndicatorMode returns the status LED mode.
func (c *Camera) IndicatorMode() (string, error) {
	return c.getEnum(featIndicatorMode)
}

// SetIndicatorMode sets the status LED mode.
func (c *Camera) SetIndicatorMode(mode string) error {
	return c.setEnum(featIndicatorMode, mode)
}

// IndicatorModes returns the selectable status LED modes.
func (c *Camera) IndicatorModes() (modes []string, available []bool, err error) {
	return c.enumEntries(featIndicatorMode)
}

// IndicatorLuma returns the status LED luminance.
func (c *Camera) IndicatorLuma() (int64, error) {
	return c.getInt(featIndicatorLuma)
}

// SetIndicatorLuma sets the status LED luminance.
func (c *Camera) SetIndicatorLuma(luma int64) error {
	return c.locked(func() error {
		return c.dev.SetInt(featIndicatorLuma, luma)
	})
}

// IndicatorLumaRange returns the status LED luminance limits and
// increment.
func (c *Camera) IndicatorLumaRange() (min, max, step int64, err error) {
	err = c.locked(func() error {
		min, max, step, err = c.dev.IntRange(featIndicatorLuma)
		return err
	})
	return min, max, step, err
}

// TriggerLine returns the trigger line selected for configuration.
func (c *Camera) TriggerLine() (string, error) {
	return c.getEnum(featTriggerLine)
}

// SetTriggerLine selects the trigger line to configure.
func (c *Camera) SetTriggerLine(line string) error {
	return c.setEnum(featTriggerLine, line)
}

// TriggerLines returns the device's trigger lines.
func (c *Camera) TriggerLines() (lines []string, available []bool, err error) {
	return c.enumEntries(featTriggerLine)
}

// TriggerLineMode returns the direction of the selected trigger line.
func (c *Camera) TriggerLineMode() (string, error) {
	return c.getEnum(featLineMode)
}

// SetTriggerLineMode sets the direction of the selected trigger line.
func (c *Camera) SetTriggerLineMode(mode string) error {
	return c.setEnum(featLineMode, mode)
}

// TriggerLineModes returns the selectable trigger line directions.
func (c *Camera) TriggerLineModes() (modes []string, available []bool, err error) {
	return c.enumEntries(featLineMode)
}

// TriggerLineSource returns the signal driving the selected trigger
// line when it is configured as an output.
func (c *Camera) TriggerLineSource() (string, error) {
	return c.getEnum(featLineSource)
}

// SetTriggerLineSource sets the signal driving the selected trigger
// line.
func (c *Camera) SetTriggerLineSource(src string) error {
	return c.setEnum(featLineSource, src)
}

// TriggerLineSources returns the selectable trigger line signals.
func (c *Camera) TriggerLineSources() (srcs []string, available []bool, err error) {
	return c.enumEntries(featLineSource)
}

// TriggerLinePolarity reports whether the selected trigger line's
// signal is inverted.
func (c *Camera) TriggerLinePolarity() (inverted bool, err error) {
	return c.getBool(featLineInverter)
}

// SetTriggerLinePolarity sets the signal inversion of the selected
// trigger line.
func (c *Camera) SetTriggerLinePolarity(inverted bool) error {
	return c.setBool(featLineInverter, inverted)
}

// TriggerLineDebounceMode returns the debounce mode of the selected
// trigger line.
func (c *Camera) TriggerLineDebounceMode() (string, error) {
	return c.getEnum(featLineDebounceMode)
}

// SetTriggerLineDebounceMode sets the debounce mode of the selected
// trigger line.
func (c *Camera) SetTriggerLineDebounceMode(mode string) error {
	return c.setEnum(featLineDebounceMode, mode)
}

// TriggerLineDebounceModes returns the selectable debounce modes.
func (c *Camera) TriggerLineDebounceModes() (modes []string, available []bool, err error) {
	return c.enumEntries(featLineDebounceMode)
}

// TriggerLineDebounceTime returns the debounce duration of the
// selected trigger line in microseconds.
func (c *Camera) TriggerLineDebounceTime() (float64, error) {
	return c.getFloat(featLineDebounceTime)
}

// SetTriggerLineDebounceTime sets the debounce duration of the
// selected trigger line in microseconds.
func (c *Camera) SetTriggerLineDebounceTime(us float64) error {
	if us < 0 {
		return fmt.Errorf("%w: debounce time %v", pkg.ErrBadParameter, us)
	}
	return c.setFloat(featLineDebounceTime, us)
}

// TriggerLineDebounceTimeRange returns the debounce duration limits
// and increment in microseconds.
func (c *Camera) TriggerLineDebounceTimeRange() (min, max, step float64, err error) {
	return c.floatRange(featLineDebounceTime)
}

// ThroughputLimit returns the transport link throughput limit in
// bytes per second.
func (c *Camera) ThroughputLimit() (int64, error) {
	return c.getInt(featThroughputLimit)
}

// SetThroughputLimit sets the transport link throughput limit in
// bytes per second.
func (c *Camera) SetThroughputLimit(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%w: throughput limit %d", pkg.ErrBadParameter, limit)
	}
	return c.locked(func() error {
		return c.dev.SetInt(featThroughputLimit, limit)
	})
}

// ThroughputLimitRange returns the throughput limit bounds and
// increment in bytes per second.
func (c *Camera) ThroughputLimitRange() (min, max, step int64, err error) {
	err = c.locked(func() error {
		min, max, step, err = c.dev.IntRange(featThroughputLimit)
		return err
	})
	return min, max, step, err
}

// LinkSpeed returns the negotiated transport link speed in bytes per
// second.
func (c *Camera) LinkSpeed() (int64, error) {
	return c.getInt(featLinkSpeed)
}

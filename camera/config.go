package camera

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/visionkit/gencam/pkg"
)

// Config is a declarative camera setup, typically loaded from a YAML
// file and applied to a freshly opened camera. Zero values mean "leave
// the device default alone".
type Config struct {
	Width   uint32 `yaml:"width"`
	Height  uint32 `yaml:"height"`
	OffsetX uint32 `yaml:"offset_x"`
	OffsetY uint32 `yaml:"offset_y"`

	PixelFormat   string `yaml:"pixel_format"`
	BinningFactor uint32 `yaml:"binning_factor"`
	BinningMode   string `yaml:"binning_mode"`

	ExposureUs    float64 `yaml:"exposure_us"`
	Gain          float64 `yaml:"gain"`
	FrameRate     float64 `yaml:"frame_rate"`
	FrameRateAuto *bool   `yaml:"frame_rate_auto"`

	FlipX bool `yaml:"flip_x"`
	FlipY bool `yaml:"flip_y"`

	TriggerLine string `yaml:"trigger_line"`

	// FrameCount sizes the frame pool after the features above have
	// been applied, so the pool matches the resulting payload size.
	FrameCount uint32 `yaml:"frame_count"`
}

// DefaultConfig returns a conservative starting configuration: free
// running at a modest pool size, everything else left at the device
// defaults.
func DefaultConfig() Config {
	auto := true
	return Config{
		FrameRateAuto: &auto,
		FrameCount:    3,
	}
}

// LoadConfig reads a YAML camera configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %s", pkg.ErrBadParameter, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no device could accept.
func (cfg *Config) Validate() error {
	if (cfg.Width == 0) != (cfg.Height == 0) {
		return fmt.Errorf("%w: width and height must be set together", pkg.ErrBadParameter)
	}
	if cfg.ExposureUs < 0 {
		return fmt.Errorf("%w: exposure_us %v", pkg.ErrBadParameter, cfg.ExposureUs)
	}
	if cfg.Gain < 0 {
		return fmt.Errorf("%w: gain %v", pkg.ErrBadParameter, cfg.Gain)
	}
	if cfg.FrameRate < 0 {
		return fmt.Errorf("%w: frame_rate %v", pkg.ErrBadParameter, cfg.FrameRate)
	}
	if cfg.FrameCount > MaxFrames {
		return fmt.Errorf("%w: frame_count %d exceeds maximum %d",
			pkg.ErrBadParameter, cfg.FrameCount, MaxFrames)
	}
	return nil
}

// Apply pushes the configuration to an open camera. Features are
// applied first and the frame pool is sized last, so the pool always
// matches the configured geometry. The device must not be capturing.
func (cfg *Config) Apply(c *Camera) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.PixelFormat != "" {
		if err := c.SetPixelFormat(cfg.PixelFormat); err != nil {
			return fmt.Errorf("pixel_format: %w", err)
		}
	}
	if cfg.BinningMode != "" {
		if err := c.SetBinningMode(cfg.BinningMode); err != nil {
			return fmt.Errorf("binning_mode: %w", err)
		}
	}
	if cfg.BinningFactor > 0 {
		if err := c.SetBinningFactor(cfg.BinningFactor); err != nil {
			return fmt.Errorf("binning_factor: %w", err)
		}
	}
	if cfg.Width > 0 {
		if err := c.SetImageSize(cfg.Width, cfg.Height); err != nil {
			return fmt.Errorf("image size: %w", err)
		}
	}
	if cfg.OffsetX > 0 || cfg.OffsetY > 0 {
		if err := c.SetImageOffset(cfg.OffsetX, cfg.OffsetY); err != nil {
			return fmt.Errorf("image offset: %w", err)
		}
	}
	if cfg.ExposureUs > 0 {
		if err := c.SetExposure(cfg.ExposureUs); err != nil {
			return fmt.Errorf("exposure_us: %w", err)
		}
	}
	if cfg.Gain > 0 {
		if err := c.SetGain(cfg.Gain); err != nil {
			return fmt.Errorf("gain: %w", err)
		}
	}
	if cfg.FrameRateAuto != nil {
		if err := c.SetFrameRateAuto(*cfg.FrameRateAuto); err != nil {
			return fmt.Errorf("frame_rate_auto: %w", err)
		}
	}
	if cfg.FrameRate > 0 {
		if err := c.SetFrameRate(cfg.FrameRate); err != nil {
			return fmt.Errorf("frame_rate: %w", err)
		}
	}
	if cfg.FlipX || cfg.FlipY {
		if err := c.SetImageFlip(cfg.FlipX, cfg.FlipY); err != nil {
			return fmt.Errorf("flip: %w", err)
		}
	}
	if cfg.TriggerLine != "" {
		if err := c.SetTriggerLine(cfg.TriggerLine); err != nil {
			return fmt.Errorf("trigger_line: %w", err)
		}
	}
	if cfg.FrameCount > 0 {
		if err := c.AllocateFrames(cfg.FrameCount); err != nil {
			return fmt.Errorf("frame_count: %w", err)
		}
	}
	return nil
}

// Package config provides configuration loading and management for lccnr.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"lccnr/pkg/log"
	"lccnr/pkg/validation"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Marking protocol constants
	Protocol struct {
		// Slices is the number of axial slices each ROI is marked on
		Slices int `yaml:"slices"`

		// LCVoxels is the voxel count of each LC ROI per slice
		LCVoxels int `yaml:"lcVoxels"`

		// PTVoxels is the voxel count of the PT ROI per slice
		PTVoxels int `yaml:"ptVoxels"`

		// PTVentralOffset is the row distance from the LC centre to the PT
		PTVentralOffset int `yaml:"ptVentralOffset"`
	} `yaml:"protocol"`

	Logging struct {
		// Level and Format apply to console logging of the CLI itself
		Level  string `yaml:"level"`
		Format string `yaml:"format"`

		// FileLevel and ConsoleLevel apply to per-run logs
		FileLevel    string `yaml:"fileLevel"`
		ConsoleLevel string `yaml:"consoleLevel"`
	} `yaml:"logging"`

	Output struct {
		// Force overwrites existing result files
		Force bool `yaml:"force"`

		// Strict skips contrast when the mask has a structural error
		Strict bool `yaml:"strict"`
	} `yaml:"output"`

	Batch struct {
		// Workers bounds the number of subjects processed at once
		Workers int `yaml:"workers"`

		ImagePattern   string `yaml:"imagePattern"`
		SubjectPattern string `yaml:"subjectPattern"`
		CNRPattern     string `yaml:"cnrPattern"`
	} `yaml:"batch"`

	Store struct {
		// Path of the SQLite results database; empty disables recording
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	p := validation.DefaultProtocol()
	cfg.Protocol.Slices = p.Slices
	cfg.Protocol.LCVoxels = p.LCVoxels
	cfg.Protocol.PTVoxels = p.PTVoxels
	cfg.Protocol.PTVentralOffset = p.PTVentralOffset

	cfg.Logging.Level = string(log.LevelInfo)
	cfg.Logging.Format = string(log.FormatText)
	cfg.Logging.FileLevel = string(log.LevelInfo)
	cfg.Logging.ConsoleLevel = string(log.LevelError)

	cfg.Batch.Workers = runtime.NumCPU()
	cfg.Batch.ImagePattern = "LC_[FT]SE.nii*"
	cfg.Batch.SubjectPattern = "MRIPROC_*"
	cfg.Batch.CNRPattern = "LC_ROI_*.txt"

	return cfg
}

// ValidationProtocol converts the protocol section for the validator
func (c *Config) ValidationProtocol() validation.Protocol {
	return validation.Protocol{
		Slices:          c.Protocol.Slices,
		LCVoxels:        c.Protocol.LCVoxels,
		PTVoxels:        c.Protocol.PTVoxels,
		PTVentralOffset: c.Protocol.PTVentralOffset,
	}
}

// Validate checks value ranges and log level names
func (c *Config) Validate() error {
	var errs []error
	if c.Protocol.Slices < 1 {
		errs = append(errs, fmt.Errorf("protocol.slices must be positive, got %d", c.Protocol.Slices))
	}
	if c.Protocol.LCVoxels < 1 || c.Protocol.PTVoxels < 1 {
		errs = append(errs, fmt.Errorf("protocol voxel counts must be positive, got %d/%d",
			c.Protocol.LCVoxels, c.Protocol.PTVoxels))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers))
	}
	for name, level := range map[string]string{
		"logging.level":        c.Logging.Level,
		"logging.fileLevel":    c.Logging.FileLevel,
		"logging.consoleLevel": c.Logging.ConsoleLevel,
	} {
		if _, err := log.GetLevel(level); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if _, err := log.GetFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Encode writes the configuration as YAML
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Package config loads service configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the tunable service settings. Zero-value fields are
// filled from Default after loading.
type Config struct {
	// PageSize is the named default page size for generated pages.
	PageSize string `toml:"page_size"`
	// Margin is the default page margin in points.
	Margin float64 `toml:"margin"`
	// JPEGQuality is the re-encoding quality for normalized images.
	JPEGQuality int `toml:"jpeg_quality"`
	// MaxUploadBytes caps the size of a single uploaded file. Zero
	// means unlimited.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
	// OCRLanguages lists default language hints for text recognition.
	OCRLanguages []string `toml:"ocr_languages"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PageSize:    "Letter",
		Margin:      50,
		JPEGQuality: 85,
	}
}

// Load reads the TOML file at path. A missing file is not an error and
// yields the defaults; a present but unparseable file is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.PageSize == "" {
		c.PageSize = def.PageSize
	}
	if c.Margin <= 0 {
		c.Margin = def.Margin
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
}

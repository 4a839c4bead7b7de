package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doccomposer.toml")
	content := `
page_size = "A4"
max_upload_bytes = 1048576
ocr_languages = ["eng", "deu"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "A4", cfg.PageSize)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCRLanguages)
	// Unset fields come from the defaults.
	assert.Equal(t, 50.0, cfg.Margin)
	assert.Equal(t, 85, cfg.JPEGQuality)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("page_size = [unclosed"), 0o644))

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadClampsBadQuality(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doccomposer.toml")
	require.NoError(t, os.WriteFile(path, []byte("jpeg_quality = 300"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 85, cfg.JPEGQuality)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "media/images", cfg.ImagesDir)
	assert.Equal(t, "media/obj.zip", cfg.ArchivePath)
	assert.Equal(t, 30, cfg.FrameInterval)
	assert.Equal(t, 0, cfg.MaxFrames)
	assert.False(t, cfg.CapFileSources)
	assert.Equal(t, "yolov4-tiny/obj.names", cfg.NamesPath())
	assert.Equal(t, "yolov4-tiny/yolov4-tiny-custom_template.cfg", cfg.TemplatePath())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EXTRACT_INTERVAL", "5")
	t.Setenv("EXTRACT_CAP_FILE_SOURCES", "true")
	t.Setenv("DATASET_MODEL_DIR", "cfg")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.FrameInterval)
	assert.True(t, cfg.CapFileSources)
	assert.Equal(t, "cfg/yolov4-tiny-custom.cfg", cfg.ConfigPath())
}

func TestLoadRejectsInvalidExtractionDefaults(t *testing.T) {
	t.Setenv("EXTRACT_INTERVAL", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "EXTRACT_INTERVAL")
}

func TestLoadRejectsUnknownFrameFormat(t *testing.T) {
	t.Setenv("EXTRACT_FRAME_FORMAT", "bmp")
	_, err := Load()
	assert.ErrorContains(t, err, "EXTRACT_FRAME_FORMAT")
}

func TestLoadRejectsSampleRatioOutOfRange(t *testing.T) {
	t.Setenv("TRACE_SAMPLE_RATIO", "1.5")
	_, err := Load()
	assert.ErrorContains(t, err, "TRACE_SAMPLE_RATIO")
}

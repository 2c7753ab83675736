// Package config_test tests the configuration loading for voicebox.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voicebox/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[paths]
base_dir = "/srv/voicebox"
voices_dir = "voices"
registry_file = "voices.json"
base_logs_dir = "/var/log/voicebox"

[model]
service_url = "http://127.0.0.1:9000"
timeout_seconds = 120
language = "es"
default_speed = 0.9

[transcription]
base_url = "http://127.0.0.1:9001/v1"
api_key = "sk-test"
model = "whisper-large-v3"

[server]
addr = ":8080"
upload_limit_mb = 20

[nats]
url = "nats://127.0.0.1:4222"
synthesis_subject = "voices.synthesize"
audio_object_store_bucket = "AUDIO_FILES"
`

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(fullConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "/srv/voicebox", cfg.Paths.BaseDir)
	assert.Equal(t, "voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "/var/log/voicebox", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Model.ServiceURL)
	assert.Equal(t, 120, cfg.Model.TimeoutSeconds)
	assert.InEpsilon(t, 0.9, cfg.Model.DefaultSpeed, 0.001)
	assert.Equal(t, "whisper-large-v3", cfg.Transcription.Model)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Server.UploadLimitMB)
	assert.Equal(t, "voices.synthesize", cfg.NATS.SynthesisSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte("[paths]\nbase_dir = \"/data\"\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/voices", cfg.VoicesPath())
	assert.Equal(t, "/data/voices/voices.json", cfg.RegistryPath())
	assert.Equal(t, "es", cfg.Model.Language)
	assert.Equal(t, "es", cfg.Transcription.Language)
	assert.InEpsilon(t, 1.0, cfg.Model.DefaultSpeed, 0.001)
	assert.Equal(t, 300, cfg.Model.TimeoutSeconds)
	assert.Equal(t, "whisper-1", cfg.Transcription.Model)
	assert.Equal(t, ":7860", cfg.Server.Addr)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "speed too fast",
			content: "[model]\ndefault_speed = 3.0\n",
			wantErr: config.ErrInvalidSpeed,
		},
		{
			name:    "speed not a number",
			content: "[model]\ndefault_speed = nan\n",
			wantErr: config.ErrInvalidSpeed,
		},
		{
			name:    "negative timeout",
			content: "[model]\ntimeout_seconds = -1\n",
			wantErr: config.ErrInvalidTimeout,
		},
		{
			name:    "voices outside base",
			content: "[paths]\nbase_dir = \"/data\"\nvoices_dir = \"../elsewhere\"\n",
			wantErr: config.ErrVoicesDirEscapes,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "project.toml")
			require.NoError(t, os.WriteFile(path, []byte(testCase.content), 0o600))

			_, err := config.LoadFile(path)
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

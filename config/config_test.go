package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, BackendSageMaker, cfg.Compute)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 1000*time.Second, cfg.MaxWait)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.False(t, cfg.VerifyArtifacts)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMPUTE_BACKEND", "memory")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("MAX_WAIT", "2h")
	t.Setenv("VERIFY_ARTIFACTS", "true")
	t.Setenv("AWS_REGION", "ap-southeast-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Compute)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Hour, cfg.MaxWait)
	assert.True(t, cfg.VerifyArtifacts)
	assert.Equal(t, "ap-southeast-2", cfg.AWSRegion)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("COMPUTE_BACKEND", "gcp")
	_, err := Load()
	assert.ErrorContains(t, err, "COMPUTE_BACKEND")

	t.Setenv("COMPUTE_BACKEND", "memory")
	t.Setenv("MAX_WAIT", "0s")
	_, err = Load()
	assert.ErrorContains(t, err, "MAX_WAIT")
}

func TestLoadRejectsBadIntervals(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero max poll interval", map[string]string{"MAX_POLL_INTERVAL": "0s"}},
		{"negative max poll interval", map[string]string{"MAX_POLL_INTERVAL": "-1m"}},
		{"max poll interval below poll interval", map[string]string{"POLL_INTERVAL": "1m", "MAX_POLL_INTERVAL": "30s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, "MAX_POLL_INTERVAL")
		})
	}
}

func TestLoadPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORE_BACKEND", "memory")
	_, err = Load()
	assert.NoError(t, err)
}

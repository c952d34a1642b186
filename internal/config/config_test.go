package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	req := require.New(t)
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal("./web", cfg.StaticPath)
	req.Equal("./data", cfg.DataDir)
	req.Equal(int64(65536), cfg.ReadLimit)
	req.Equal(64, cfg.SendBuffer)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal(500, cfg.ChatHistory)
}

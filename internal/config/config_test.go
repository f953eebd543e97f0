package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"MATCH_DURATION_SECONDS", "ALLOW_RESUBMIT", "DISCONNECT_GRACE_PERIOD_SECONDS", "ELO_K_FACTOR", "REDIS_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, 90, cfg.MatchDurationSecs)
	assert.True(t, cfg.AllowResubmit)
	assert.Equal(t, 8, cfg.DisconnectGracePeriodSecs)
	assert.Equal(t, 32, cfg.EloKFactor)
	assert.Equal(t, 30, cfg.RecentProblemsWindow)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MATCH_DURATION_SECONDS", "45")
	t.Setenv("ALLOW_RESUBMIT", "false")
	t.Setenv("ELO_K_FACTOR", "not-a-number")

	cfg := Load()
	assert.Equal(t, 45, cfg.MatchDurationSecs)
	assert.False(t, cfg.AllowResubmit)
	assert.Equal(t, 32, cfg.EloKFactor, "invalid ints fall back to the default")
}

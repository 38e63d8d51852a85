package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"DATABASE_URL":   "postgres://localhost/ladder",
		"JWT_SECRET_KEY": "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 48*time.Hour, cfg.Ladder.ExpiryWindow)
	assert.Equal(t, CellarRuleOff, cfg.Ladder.CellarRule)
	assert.Equal(t, 3, cfg.Ladder.CellarStreak)
	assert.Equal(t, time.Hour, cfg.Ladder.RiskyInterval)
	assert.Equal(t, time.UTC, cfg.Ladder.Location)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.SMTPEnabled())
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.R2Enabled())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"DATABASE_URL":         "postgres://localhost/ladder",
		"JWT_SECRET_KEY":       "secret",
		"SERVER_PORT":          "9090",
		"LADDER_EXPIRY_HOURS":  "24",
		"LADDER_CELLAR_RULE":   "after-cascade",
		"LADDER_CELLAR_STREAK": "4",
		"KAFKA_BROKERS":        "k1:9092, k2:9092",
		"CORS_ALLOWED_ORIGINS": "https://ladder.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.Ladder.ExpiryWindow)
	assert.Equal(t, CellarRuleAfterCascade, cfg.Ladder.CellarRule)
	assert.Equal(t, 4, cfg.Ladder.CellarStreak)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"https://ladder.example"}, cfg.CORSAllowedOrigins)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	base := map[string]string{"DATABASE_URL": "postgres://x", "JWT_SECRET_KEY": "s"}
	cases := map[string]map[string]string{
		"missing database": {"JWT_SECRET_KEY": "s"},
		"missing secret":   {"DATABASE_URL": "postgres://x"},
		"port range":       {"SERVER_PORT": "70000"},
		"port syntax":      {"SERVER_PORT": "http"},
		"cellar rule":      {"LADDER_CELLAR_RULE": "sometimes"},
		"expiry":           {"LADDER_EXPIRY_HOURS": "0"},
		"interval":         {"LADDER_RISKY_INTERVAL": "soon"},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{}
			if name != "missing database" && name != "missing secret" {
				for k, v := range base {
					env[k] = v
				}
			}
			for k, v := range override {
				env[k] = v
			}
			_, err := FromEnv(envOf(env))
			assert.Error(t, err)
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/models"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DATABASE_URL": "postgres://localhost/sales",
		"JWT_SECRET":   "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, int32(2), cfg.DBMinConns)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 30*time.Second, cfg.Analytics.QueryTimeout)
	assert.Equal(t, 1000, cfg.Analytics.Limits.MaxLimit)
	assert.Equal(t, 2.0, cfg.Analytics.Thresholds.AnomalySensitivity)
	assert.Empty(t, cfg.Users)
}

func TestLoad_RequiredKeys(t *testing.T) {
	_, err := load(env(map[string]string{"JWT_SECRET": "secret"}))
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = load(env(map[string]string{"DATABASE_URL": "postgres://localhost/sales"}))
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DATABASE_URL":         "postgres://localhost/sales",
		"JWT_SECRET":           "secret",
		"PORT":                 "8080",
		"QUERY_TIMEOUT":        "45",
		"CACHE_TTL_ANALYSIS":   "2m",
		"CACHE_ENABLED":        "false",
		"QUERY_MAX_LIMIT":      "500",
		"QUERY_DEFAULT_LIMIT":  "50",
		"AFFINITY_STRONG_LIFT": "3.5",
		"DISCOUNT_LOW_PCT":     "10",
		"DISCOUNT_MEDIUM_PCT":  "25",
		"AUTH_USERS":           "Owner@Example.com:$2a$10$abc:OWNER; ops@example.com:$2a$10$def:manager",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.Analytics.QueryTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Analytics.AnalysisTTL)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, 500, cfg.Analytics.Limits.MaxLimit)
	assert.Equal(t, 50, cfg.Analytics.Limits.DefaultLimit)
	assert.Equal(t, 3.5, cfg.Analytics.Thresholds.AffinityStrongLift)
	assert.Equal(t, 10.0, cfg.Analytics.Thresholds.DiscountLowPct)
	assert.Equal(t, 25.0, cfg.Analytics.Thresholds.DiscountMediumPct)
	assert.Equal(t, []models.AuthUser{
		{Email: "owner@example.com", PasswordHash: "$2a$10$abc", Role: models.RoleOwner},
		{Email: "ops@example.com", PasswordHash: "$2a$10$def", Role: models.RoleManager},
	}, cfg.Users)
}

func TestLoad_InsightThresholds(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DATABASE_URL":               "postgres://localhost/sales",
		"JWT_SECRET":                 "secret",
		"WEEKEND_GAP_PCT":            "20",
		"CHANNEL_CONCENTRATION_PCT":  "65",
		"AFFINITY_UPSELL_CONFIDENCE": "0.4",
		"CANCELLATION_RATE_PCT":      "8",
		"OUTLIER_RATE_PCT":           "3",
		"PROFILE_HISTOGRAM_MAX":      "1000",
	}))
	require.NoError(t, err)

	th := cfg.Analytics.Thresholds
	assert.Equal(t, 20.0, th.WeekendGapPct)
	assert.Equal(t, 65.0, th.ChannelConcentrationPct)
	assert.Equal(t, 0.4, th.AffinityUpsellConfidence)
	assert.Equal(t, 8.0, th.CancellationRatePct)
	assert.Equal(t, 3.0, th.OutlierRatePct)
	assert.Equal(t, 1000.0, cfg.Analytics.ProfileHistogramMax)
	assert.Equal(t, 5.0, th.DiscountLowPct)
	assert.Equal(t, 15.0, th.DiscountMediumPct)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	base := map[string]string{"DATABASE_URL": "postgres://localhost/sales", "JWT_SECRET": "secret"}
	for key, val := range map[string]string{
		"QUERY_TIMEOUT":       "soon",
		"ANOMALY_SENSITIVITY": "-1",
		"DB_POOL_MAX_CONNS":   "many",
		"CACHE_ENABLED":       "perhaps",
		"QUERY_DEFAULT_LIMIT": "5000",
		"DISCOUNT_MEDIUM_PCT": "4",
		"WEEKEND_GAP_PCT":     "0",
		"AUTH_USERS":          "someone@example.com:hash:cashier",
	} {
		vals := map[string]string{key: val}
		for k, v := range base {
			vals[k] = v
		}
		_, err := load(env(vals))
		assert.Error(t, err, key)
	}
}

func TestParseUsers_Malformed(t *testing.T) {
	_, err := ParseUsers("no-colons-here")
	assert.Error(t, err)

	users, err := ParseUsers(" ; ")
	require.NoError(t, err)
	assert.Empty(t, users)
}

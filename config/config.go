// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"restaurant-analytics/analytics"
	"restaurant-analytics/models"
	"restaurant-analytics/utils"
)

// Config holds everything main needs to wire the service.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	CORSOrigins string

	DBMinConns    int32
	DBMaxConns    int32
	DBMaxConnIdle time.Duration

	CacheEnabled bool
	Analytics    analytics.Settings

	Users []models.AuthUser

	GeminiAPIKey string
	GeminiModel  string
}

// Load builds a Config from environment variables, falling back to defaults for anything
// optional. DATABASE_URL and JWT_SECRET are required.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:         valueOr(getenv("PORT"), "3000"),
		DatabaseURL:  getenv("DATABASE_URL"),
		JWTSecret:    getenv("JWT_SECRET"),
		CORSOrigins:  valueOr(getenv("CORS_ORIGINS"), "*"),
		GeminiAPIKey: getenv("GEMINI_API_KEY"),
		GeminiModel:  valueOr(getenv("GEMINI_MODEL"), "gemini-2.5-flash-lite"),
		Analytics:    analytics.DefaultSettings(),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	p := parser{getenv: getenv}
	cfg.DBMinConns = int32(p.int("DB_POOL_MIN_CONNS", 2))
	cfg.DBMaxConns = int32(p.int("DB_POOL_MAX_CONNS", 10))
	cfg.DBMaxConnIdle = p.duration("DB_MAX_CONN_IDLE", 5*time.Minute)
	cfg.CacheEnabled = p.bool("CACHE_ENABLED", true)

	s := &cfg.Analytics
	s.QueryTimeout = p.duration("QUERY_TIMEOUT", s.QueryTimeout)
	s.Limits.MaxLimit = p.int("QUERY_MAX_LIMIT", s.Limits.MaxLimit)
	s.Limits.DefaultLimit = p.int("QUERY_DEFAULT_LIMIT", s.Limits.DefaultLimit)
	s.QueryTTL = p.duration("CACHE_TTL_QUERY", s.QueryTTL)
	s.AnalysisTTL = p.duration("CACHE_TTL_ANALYSIS", s.AnalysisTTL)

	th := &s.Thresholds
	th.AnomalySensitivity = p.float("ANOMALY_SENSITIVITY", th.AnomalySensitivity)
	th.AnomalyHighSigma = p.float("ANOMALY_HIGH_SIGMA", th.AnomalyHighSigma)
	th.AffinityStrongLift = p.float("AFFINITY_STRONG_LIFT", th.AffinityStrongLift)
	th.AffinityModerateLift = p.float("AFFINITY_MODERATE_LIFT", th.AffinityModerateLift)
	th.AffinityStrongConfidence = p.float("AFFINITY_STRONG_CONFIDENCE", th.AffinityStrongConfidence)
	th.AffinityUpsellConfidence = p.float("AFFINITY_UPSELL_CONFIDENCE", th.AffinityUpsellConfidence)
	th.ForecastGoodR2 = p.float("FORECAST_GOOD_R2", th.ForecastGoodR2)
	th.ForecastFairR2 = p.float("FORECAST_FAIR_R2", th.ForecastFairR2)
	th.TrendStablePct = p.float("TREND_STABLE_PCT", th.TrendStablePct)
	th.DiscountLowPct = p.float("DISCOUNT_LOW_PCT", th.DiscountLowPct)
	th.DiscountMediumPct = p.float("DISCOUNT_MEDIUM_PCT", th.DiscountMediumPct)
	th.WeekendGapPct = p.float("WEEKEND_GAP_PCT", th.WeekendGapPct)
	th.ChannelConcentrationPct = p.float("CHANNEL_CONCENTRATION_PCT", th.ChannelConcentrationPct)
	th.CancellationRatePct = p.float("CANCELLATION_RATE_PCT", th.CancellationRatePct)
	th.OutlierRatePct = p.float("OUTLIER_RATE_PCT", th.OutlierRatePct)
	s.ProfileHistogramMax = p.float("PROFILE_HISTOGRAM_MAX", s.ProfileHistogramMax)

	if p.err != nil {
		return nil, p.err
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DB_POOL_MIN_CONNS (%d) exceeds DB_POOL_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if th.DiscountMediumPct <= th.DiscountLowPct {
		return nil, fmt.Errorf("DISCOUNT_MEDIUM_PCT (%g) must exceed DISCOUNT_LOW_PCT (%g)", th.DiscountMediumPct, th.DiscountLowPct)
	}
	if s.Limits.DefaultLimit < 1 || s.Limits.DefaultLimit > s.Limits.MaxLimit {
		return nil, fmt.Errorf("QUERY_DEFAULT_LIMIT must be between 1 and QUERY_MAX_LIMIT (%d)", s.Limits.MaxLimit)
	}

	users, err := ParseUsers(getenv("AUTH_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.Users = users
	return cfg, nil
}

// ParseUsers reads AUTH_USERS entries of the form email:bcryptHash:role separated by ';'.
func ParseUsers(raw string) ([]models.AuthUser, error) {
	var users []models.AuthUser
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// bcrypt hashes contain '$' but never ':'
		parts := strings.Split(item, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("AUTH_USERS: malformed entry %q", item)
		}
		role, ok := utils.ValidateAndNormalizeRole(parts[2])
		if !ok {
			return nil, fmt.Errorf("AUTH_USERS: invalid role %q for %s", parts[2], parts[0])
		}
		users = append(users, models.AuthUser{
			Email:        strings.ToLower(strings.TrimSpace(parts[0])),
			PasswordHash: parts[1],
			Role:         role,
		})
	}
	return users, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parser records the first malformed value so Load can report it once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if n < 0 {
		p.fail(key, v, errors.New("must not be negative"))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if f <= 0 {
		p.fail(key, v, errors.New("must be positive"))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("45s") or a bare number of seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

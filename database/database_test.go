package database

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolConfig(t *testing.T) {
	cfg, err := newPoolConfig("postgres://analyst:pw@localhost:5432/sales", PoolOptions{
		MinConns:    2,
		MaxConns:    8,
		MaxConnIdle: 90 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, 90*time.Second, cfg.MaxConnIdleTime)
	assert.Equal(t, "on", cfg.ConnConfig.RuntimeParams["default_transaction_read_only"])
	assert.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestNewPoolConfig_KeepsURLSettingsWhenUnset(t *testing.T) {
	cfg, err := newPoolConfig("postgres://localhost/sales?pool_max_conns=3", PoolOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), cfg.MaxConns)
}

func TestNewPoolConfig_InvalidURL(t *testing.T) {
	_, err := newPoolConfig("postgres://localhost/sales?pool_max_conns=lots", PoolOptions{})
	assert.ErrorContains(t, err, "invalid DATABASE_URL")
}

func TestNormalizeRow(t *testing.T) {
	row := map[string]interface{}{
		"revenue": pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true},
		"missing": pgtype.Numeric{},
		"orders":  int64(7),
		"store":   "Centro",
	}
	normalizeRow(row)

	assert.Equal(t, 123.45, row["revenue"])
	assert.Nil(t, row["missing"])
	assert.Equal(t, int64(7), row["orders"])
	assert.Equal(t, "Centro", row["store"])
}

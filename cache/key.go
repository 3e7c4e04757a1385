package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Key derives a stable cache key from an operation name and its parameters. Parameters are
// encoded to JSON, decoded into generic values and re-encoded, which sorts object keys and
// normalizes numbers, so equivalent parameter sets always hash the same.
func Key(operation string, params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode cache params for %s: %w", operation, err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("normalize cache params for %s: %w", operation, err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("encode cache params for %s: %w", operation, err)
	}

	sum := sha256.Sum256(append([]byte(operation+"\x00"), canonical...))
	return operation + ":" + hex.EncodeToString(sum[:]), nil
}

// Fetch is the typed form of GetOrCompute: it keys the call by operation and params and
// asserts the cached value back to T.
func Fetch[T any](ctx context.Context, c *Cache, operation string, params interface{}, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	key, err := Key(operation, params)
	if err != nil {
		return zero, err
	}
	v, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry for %s has type %T", operation, v)
	}
	return out, nil
}

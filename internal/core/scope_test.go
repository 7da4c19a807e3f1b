package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeRoundTrip(t *testing.T) {
	for _, scope := range []Scope{GlobalScope(), IPGlobalScope(), IPBurstScope(), EndpointScope("generatePitch")} {
		parsed, err := ParseScope(scope.String())
		require.NoError(t, err)
		assert.Equal(t, scope, parsed)
	}

	_, err := ParseScope("endpoint:")
	require.Error(t, err)
	_, err = ParseScope("weekly")
	require.Error(t, err)
}

func TestScopeLimitType(t *testing.T) {
	assert.Equal(t, "burst", IPBurstScope().LimitType())
	assert.Equal(t, "ip_global", IPGlobalScope().LimitType())
	assert.Equal(t, "global", GlobalScope().LimitType())
	assert.Equal(t, "generateReport", EndpointScope("generateReport").LimitType())
	assert.Equal(t, "endpoint:generateReport", EndpointScope("generateReport").String())
	assert.Equal(t, "endpoint", EndpointScope("generateReport").MetricLabel())
}

func TestStorageError(t *testing.T) {
	base := errors.New("database is locked")
	err := NewStorageError("check", base)

	require.True(t, IsStorageError(err))
	require.ErrorIs(t, err, base)
	assert.Equal(t, "counter store check: database is locked", err.Error())

	assert.Same(t, err, NewStorageError("outer", err).(*StorageError))
	assert.NoError(t, NewStorageError("noop", nil))
	assert.False(t, IsStorageError(base))

	op, ok := StorageOp(fmt.Errorf("status: %w", err))
	assert.True(t, ok)
	assert.Equal(t, "check", op)
	_, ok = StorageOp(base)
	assert.False(t, ok)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierAnonymous, ParseTier(""))
	assert.Equal(t, TierGrowth, ParseTier("growth"))
}

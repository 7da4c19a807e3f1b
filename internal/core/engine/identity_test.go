package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quotaward/quotaward/internal/core"
)

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name string
		req  core.Request
		want Identity
	}{
		{
			name: "principal wins over addresses",
			req:  core.Request{PrincipalID: "user123", Tier: "starter", ForwardedFor: []string{"1.1.1.1"}},
			want: Identity{ID: "user123", Authenticated: true, Tier: core.TierStarter},
		},
		{
			name: "principal without tier is anonymous tier",
			req:  core.Request{PrincipalID: "user123"},
			want: Identity{ID: "user123", Authenticated: true, Tier: core.TierAnonymous},
		},
		{
			name: "unknown tier kept",
			req:  core.Request{PrincipalID: "user123", Tier: "enterprise"},
			want: Identity{ID: "user123", Authenticated: true, Tier: core.Tier("enterprise")},
		},
		{
			name: "forwarded head",
			req:  core.Request{Tier: "scale", ForwardedFor: []string{"9.9.9.9", "10.0.0.1"}, DirectAddr: "8.8.8.8"},
			want: Identity{ID: "9.9.9.9", Tier: core.TierAnonymous},
		},
		{
			name: "empty forwarded head falls through",
			req:  core.Request{ForwardedFor: []string{""}, DirectAddr: "8.8.8.8"},
			want: Identity{ID: "8.8.8.8", Tier: core.TierAnonymous},
		},
		{
			name: "transport address port stripped",
			req:  core.Request{TransportAddr: "192.0.2.7:51234"},
			want: Identity{ID: "192.0.2.7", Tier: core.TierAnonymous},
		},
		{
			name: "ipv6 transport address",
			req:  core.Request{TransportAddr: "[2001:db8::1]:443"},
			want: Identity{ID: "2001:db8::1", Tier: core.TierAnonymous},
		},
		{
			name: "transport address without port",
			req:  core.Request{TransportAddr: "192.0.2.7"},
			want: Identity{ID: "192.0.2.7", Tier: core.TierAnonymous},
		},
		{
			name: "nothing known",
			req:  core.Request{},
			want: Identity{ID: UnknownIdentity, Tier: core.TierAnonymous},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveIdentity(tt.req))
		})
	}
}

func TestSplitForwardedFor(t *testing.T) {
	assert.Equal(t, []string{"9.9.9.9", "10.0.0.1", "10.0.0.2"},
		SplitForwardedFor("9.9.9.9, 10.0.0.1", "10.0.0.2"))
	assert.Nil(t, SplitForwardedFor())
}

func TestDecide(t *testing.T) {
	start := core.WindowStart(timeAt(7259), 3600)
	key := core.CounterKey{Identity: "a", Scope: core.GlobalScope()}
	limit := core.Limit{Requests: 2, WindowSeconds: 3600}

	d, next := Decide(nil, key, limit, timeAt(7259))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, int64(10800), d.ResetAt)
	assert.Equal(t, start, next.WindowStart)
	assert.Equal(t, "global", next.Scope)

	d, next = Decide(next, key, limit, timeAt(7300))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 2, next.Count)
	assert.Equal(t, int64(7300), next.LastRequestAt)

	d, denied := Decide(next, key, limit, timeAt(7301))
	assert.False(t, d.Allowed)
	assert.Nil(t, denied)
	assert.Equal(t, 2, d.Count)

	d, reset := Decide(next, key, limit, timeAt(10800))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, reset.Count)
	assert.Equal(t, int64(10800), reset.WindowStart)
}

func timeAt(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestDecideLaggingClockKeepsNewerWindow(t *testing.T) {
	key := core.CounterKey{Identity: "9.9.9.9", Scope: core.IPBurstScope()}
	limit := core.Limit{Requests: 2, WindowSeconds: 60}
	newer := &core.CounterRecord{Identity: key.Identity, Scope: "ip_burst", WindowStart: 1_700_000_100, Count: 1}

	d, next := Decide(newer, key, limit, timeAt(1_700_000_099))
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, int64(1_700_000_160), d.ResetAt)
	assert.Equal(t, int64(1_700_000_100), next.WindowStart)

	d, denied := Decide(next, key, limit, timeAt(1_700_000_099))
	assert.False(t, d.Allowed)
	assert.Nil(t, denied)
	assert.Equal(t, int64(1_700_000_160), d.ResetAt)
}

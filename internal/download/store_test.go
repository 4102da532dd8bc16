package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexio-platform/nexio/internal/shared"
)

func liveToken(tenantID int64) Token {
	return Token{
		Value:     "abc",
		ArchiveID: "arch-1",
		TenantID:  tenantID,
		UserID:    5,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func sameTenantActor() shared.AuthContext {
	return shared.AuthContext{UserID: 5, TenantID: 1, Role: "utente"}
}

func TestClassifyAllowsLiveTokenForTenant(t *testing.T) {
	require.NoError(t, classify(liveToken(1), sameTenantActor(), time.Now()))
}

func TestClassifyForeignTenantReadsAsNotFound(t *testing.T) {
	err := classify(liveToken(2), sameTenantActor(), time.Now())
	require.ErrorIs(t, err, ErrTokenNotFound)

	// Elevated callers cross tenants.
	elevated := sameTenantActor()
	elevated.Elevated = true
	require.NoError(t, classify(liveToken(2), elevated, time.Now()))
}

func TestClassifyGlobalTokenIsVisibleToAnyTenant(t *testing.T) {
	require.NoError(t, classify(liveToken(0), sameTenantActor(), time.Now()))
}

func TestClassifyRejectsUsedToken(t *testing.T) {
	token := liveToken(1)
	token.Used = true
	err := classify(token, sameTenantActor(), time.Now())
	require.ErrorIs(t, err, ErrTokenUsed)
}

func TestClassifyRejectsExpiredToken(t *testing.T) {
	token := liveToken(1)
	token.ExpiresAt = time.Now().Add(-time.Minute)
	err := classify(token, sameTenantActor(), time.Now())
	require.ErrorIs(t, err, ErrTokenExpired)

	// Expiry is a strict bound: exactly at the deadline counts as expired.
	at := time.Now()
	token.ExpiresAt = at
	require.ErrorIs(t, classify(token, sameTenantActor(), at), ErrTokenExpired)
}

func TestRedeemedByStampsConsumer(t *testing.T) {
	token := liveToken(1)
	now := time.Now()
	token.redeemedBy(9, now)

	require.True(t, token.Used)
	require.NotNil(t, token.DownloadedBy)
	require.Equal(t, int64(9), *token.DownloadedBy)
	require.NotNil(t, token.DownloadedAt)
	require.Equal(t, now, *token.DownloadedAt)
	require.False(t, token.Live(now))
}

func TestTokenLive(t *testing.T) {
	now := time.Now()
	token := liveToken(1)
	require.True(t, token.Live(now))

	token.Used = true
	require.False(t, token.Live(now))

	token = liveToken(1)
	token.ExpiresAt = now.Add(-time.Second)
	require.False(t, token.Live(now))
}

func TestNewTokenValueShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		value, err := newTokenValue()
		require.NoError(t, err)
		require.Len(t, value, 64)
		for _, c := range value {
			require.Contains(t, "0123456789abcdef", string(c))
		}
		_, dup := seen[value]
		require.False(t, dup)
		seen[value] = struct{}{}
	}
}

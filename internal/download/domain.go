package download

import (
	"errors"
	"time"
)

// Token is a single-use credential for fetching a completed archive. The raw
// value is 256 bits of entropy, hex encoded; it is the only secret, so it is
// never logged. DownloadedBy and DownloadedAt record who consumed the token
// and when.
type Token struct {
	Value        string
	ArchiveID    string
	TenantID     int64
	UserID       int64
	ExpiresAt    time.Time
	Used         bool
	DownloadedBy *int64
	DownloadedAt *time.Time
	CreatedAt    time.Time
}

// Live reports whether the token can still be redeemed at the given time.
func (t Token) Live(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// redeemedBy stamps the token as consumed by the given user.
func (t *Token) redeemedBy(userID int64, at time.Time) {
	t.Used = true
	t.DownloadedBy = &userID
	t.DownloadedAt = &at
}

var (
	ErrTokenNotFound = errors.New("download: token not found")
	ErrTokenExpired  = errors.New("download: token expired")
	ErrTokenUsed     = errors.New("download: token already used")
)

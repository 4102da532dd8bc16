package download

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexio-platform/nexio/internal/shared"
)

// tokenBytes is the entropy of a download token. 32 bytes hex encode to a
// 64-character value.
const tokenBytes = 32

// Store persists download tokens and enforces single use.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewStore constructs a Store instance. ttl bounds how long an issued token
// stays redeemable.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{pool: pool, ttl: ttl, now: time.Now}
}

const tokenColumns = `token, archive_id, COALESCE(azienda_id, 0), utente_id, expires_at, used, downloaded_by, downloaded_at, created_at`

// Issue mints a fresh token for a completed archive.
func (s *Store) Issue(ctx context.Context, archiveID string, tenantID, userID int64) (Token, error) {
	if s == nil || s.pool == nil {
		return Token{}, fmt.Errorf("download: store not initialised")
	}
	value, err := newTokenValue()
	if err != nil {
		return Token{}, err
	}
	token := Token{
		Value:     value,
		ArchiveID: archiveID,
		TenantID:  tenantID,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	var tenant any
	if tenantID != 0 {
		tenant = tenantID
	}
	const insert = `INSERT INTO download_tokens (token, archive_id, azienda_id, utente_id, expires_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING created_at`
	if err := s.pool.QueryRow(ctx, insert, token.Value, archiveID, tenant, userID, token.ExpiresAt).Scan(&token.CreatedAt); err != nil {
		return Token{}, err
	}
	return token, nil
}

// Redeem consumes a token. The UPDATE's used = FALSE guard makes redemption
// race-safe: of two concurrent requests exactly one wins.
func (s *Store) Redeem(ctx context.Context, value string, actor shared.AuthContext) (Token, error) {
	if s == nil || s.pool == nil {
		return Token{}, fmt.Errorf("download: store not initialised")
	}
	query := `SELECT ` + tokenColumns + ` FROM download_tokens WHERE token = $1`
	token, err := scanToken(s.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, err
	}
	if err := classify(token, actor, s.now()); err != nil {
		return Token{}, err
	}
	cmd, err := s.pool.Exec(ctx, `UPDATE download_tokens
SET used = TRUE, downloaded_by = $2, downloaded_at = NOW()
WHERE token = $1 AND used = FALSE`, value, actor.UserID)
	if err != nil {
		return Token{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Token{}, ErrTokenUsed
	}
	token.redeemedBy(actor.UserID, s.now())
	return token, nil
}

// LiveToken returns the newest redeemable token for an archive, if any. The
// progress endpoint uses it to surface the download URL after completion.
func (s *Store) LiveToken(ctx context.Context, archiveID string) (Token, bool, error) {
	if s == nil || s.pool == nil {
		return Token{}, false, fmt.Errorf("download: store not initialised")
	}
	query := `SELECT ` + tokenColumns + `
FROM download_tokens
WHERE archive_id = $1 AND used = FALSE AND expires_at > NOW()
ORDER BY created_at DESC
LIMIT 1`
	token, err := scanToken(s.pool.QueryRow(ctx, query, archiveID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	return token, true, nil
}

// PurgeExpired removes tokens past their expiry. Used rows are kept for the
// audit trail; the sweeper drops them with the archive.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("download: store not initialised")
	}
	cmd, err := s.pool.Exec(ctx, `DELETE FROM download_tokens WHERE used = FALSE AND expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// classify decides whether a token may be redeemed by the actor right now. A
// token from another tenant reads as not found so probing leaks nothing.
func classify(token Token, actor shared.AuthContext, now time.Time) error {
	if token.TenantID != 0 && token.TenantID != actor.TenantID && !actor.Elevated {
		return ErrTokenNotFound
	}
	if token.Used {
		return ErrTokenUsed
	}
	if !now.Before(token.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

func newTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func scanToken(row interface{ Scan(dest ...any) error }) (Token, error) {
	var token Token
	var downloadedBy sql.NullInt64
	var downloadedAt sql.NullTime
	if err := row.Scan(
		&token.Value,
		&token.ArchiveID,
		&token.TenantID,
		&token.UserID,
		&token.ExpiresAt,
		&token.Used,
		&downloadedBy,
		&downloadedAt,
		&token.CreatedAt,
	); err != nil {
		return Token{}, err
	}
	if downloadedBy.Valid {
		id := downloadedBy.Int64
		token.DownloadedBy = &id
	}
	if downloadedAt.Valid {
		t := downloadedAt.Time
		token.DownloadedAt = &t
	}
	return token, nil
}

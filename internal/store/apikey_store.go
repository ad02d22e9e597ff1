package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"llmgateway/internal/domain"
)

type APIKeyStore struct {
	db *DB
}

func NewAPIKeyStore(db *DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// CreateKey inserts a new active key under tenantID with the given display
// name and pre-computed hash. createdBy is the admin tenant id, or nil.
func (s *APIKeyStore) CreateKey(ctx context.Context, tenantID, name, keyHash string, createdBy *string) (*domain.ApiKey, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, active, created_by) VALUES ($1, $2, $3, $4, true, $5)`,
		id, tenantID, name, keyHash, createdBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *APIKeyStore) GetByID(ctx context.Context, id string) (*domain.ApiKey, error) {
	return scanKey(s.db.QueryRowContext(ctx, keySelect+` WHERE id = $1`, id))
}

// GetActiveByHash returns the active key matching hash, or ErrNotFound.
func (s *APIKeyStore) GetActiveByHash(ctx context.Context, hash string) (*domain.ApiKey, error) {
	return scanKey(s.db.QueryRowContext(ctx, keySelect+` WHERE key_hash = $1 AND active = true`, hash))
}

func (s *APIKeyStore) ListByTenant(ctx context.Context, tenantID string) ([]*domain.ApiKey, error) {
	rows, err := s.db.QueryContext(ctx, keySelect+` WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ApiKey
	for rows.Next() {
		k, err := scanKeyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *APIKeyStore) GetByTenantAndName(ctx context.Context, tenantID, name string) (*domain.ApiKey, error) {
	return scanKey(s.db.QueryRowContext(ctx, keySelect+` WHERE tenant_id = $1 AND name = $2`, tenantID, name))
}

// RevokeByHash deactivates the active key matching hash with reason. It
// returns ErrNotFound when no active key matches, including when the key
// was already revoked.
func (s *APIKeyStore) RevokeByHash(ctx context.Context, hash, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = false, revoked_at = now(), revoked_reason = $2
		 WHERE key_hash = $1 AND active = true`, hash, reason)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *APIKeyStore) RevokeByID(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = false, revoked_at = now(), revoked_reason = $2
		 WHERE id = $1 AND active = true`, id, reason)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// DeactivateAllActiveForTenant is used by admin-key rotation.
func (s *APIKeyStore) DeactivateAllActiveForTenant(ctx context.Context, tenantID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = false, revoked_at = now(), revoked_reason = $2
		 WHERE tenant_id = $1 AND active = true`, tenantID, reason)
	return err
}

// TouchLastUsed is a best-effort, fire-and-forget style update: callers may
// ignore its error, since auth must never fail because this write failed.
func (s *APIKeyStore) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now())
	return err
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const keySelect = `SELECT id, tenant_id, name, key_hash, active, created_by, last_used_at, revoked_at, revoked_reason, created_at FROM api_keys`

func scanKey(row rowScanner) (*domain.ApiKey, error) {
	return scanKeyRow(row)
}

func scanKeyRow(row rowScanner) (*domain.ApiKey, error) {
	var k domain.ApiKey
	var createdBy sql.NullString
	var lastUsed, revokedAt sql.NullTime
	var revokedReason sql.NullString

	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.Active, &createdBy, &lastUsed, &revokedAt, &revokedReason, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		k.CreatedBy = &createdBy.String
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	if revokedAt.Valid {
		k.RevokedAt = &revokedAt.Time
	}
	if revokedReason.Valid {
		k.RevokedReason = &revokedReason.String
	}
	return &k, nil
}

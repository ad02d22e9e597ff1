package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"llmgateway/internal/domain"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type TenantStore struct {
	db *DB
}

func NewTenantStore(db *DB) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) CreateTenant(ctx context.Context, name string, tier domain.Tier) (*domain.Tenant, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, tier) VALUES ($1, $2, $3)`,
		id, name, string(tier))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return s.GetTenantByID(ctx, id)
}

func (s *TenantStore) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, token_limit_per_day, spend_limit_per_day_usd, created_at
		 FROM tenants WHERE id = $1`, id))
}

func (s *TenantStore) GetTenantByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx,
		`SELECT id, name, tier, token_limit_per_day, spend_limit_per_day_usd, created_at
		 FROM tenants WHERE name = $1`, name))
}

// GetOrCreateDefaultTenant resolves the tenant named "default", creating it
// on first use.
func (s *TenantStore) GetOrCreateDefaultTenant(ctx context.Context) (*domain.Tenant, error) {
	tenant, err := s.GetTenantByName(ctx, "default")
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateTenant(ctx, "default", domain.TierFree)
}

func (s *TenantStore) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tier, token_limit_per_day, spend_limit_per_day_usd, created_at FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetLimits updates a tenant's daily token/spend limits. Either pointer may
// be nil to leave that limit unchanged.
func (s *TenantStore) SetLimits(ctx context.Context, tenantID string, tokenLimit *int64, spendLimit *float64) error {
	updates := []string{}
	args := []interface{}{}
	argIdx := 1

	if tokenLimit != nil {
		updates = append(updates, fmt.Sprintf("token_limit_per_day = $%d", argIdx))
		args = append(args, *tokenLimit)
		argIdx++
	}
	if spendLimit != nil {
		updates = append(updates, fmt.Sprintf("spend_limit_per_day_usd = $%d", argIdx))
		args = append(args, *spendLimit)
		argIdx++
	}
	if len(updates) == 0 {
		return nil
	}
	args = append(args, tenantID)

	query := "UPDATE tenants SET " + joinComma(updates) + fmt.Sprintf(" WHERE id = $%d", argIdx)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *TenantStore) scanTenant(row rowScanner) (*domain.Tenant, error) {
	return scanTenantRow(row)
}

func scanTenantRow(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	var tier string
	var tokenLimit sql.NullInt64
	var spendLimit sql.NullFloat64

	err := row.Scan(&t.ID, &t.Name, &tier, &tokenLimit, &spendLimit, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Tier = domain.Tier(tier)
	if tokenLimit.Valid {
		t.TokenLimitPerDay = &tokenLimit.Int64
	}
	if spendLimit.Valid {
		t.SpendLimitPerDayUSD = &spendLimit.Float64
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	// lib/pq wraps the SQLSTATE in *pq.Error; string-matching here avoids an
	// extra direct dependency on its concrete error type for this one check.
	return err != nil && containsAny(err.Error(), "duplicate key value", "unique constraint")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

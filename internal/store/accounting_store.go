package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"llmgateway/internal/domain"
)

type AccountingStore struct {
	db *DB
}

func NewAccountingStore(db *DB) *AccountingStore {
	return &AccountingStore{db: db}
}

// CreateRequest inserts a Request row in_progress.
func (s *AccountingStore) CreateRequest(ctx context.Context, tenantID, model, requestPayload string) (*domain.Request, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, tenant_id, model, status, request_payload) VALUES ($1, $2, $3, $4, $5)`,
		id, tenantID, model, string(domain.StatusInProgress), requestPayload)
	if err != nil {
		return nil, err
	}
	return &domain.Request{
		ID: id, TenantID: tenantID, Model: model,
		Status: domain.StatusInProgress, RequestPayload: requestPayload,
		CreatedAt: time.Now(),
	}, nil
}

// CompleteRequest finalizes a Request row on success.
func (s *AccountingStore) CompleteRequest(ctx context.Context, id, responsePayload string, latencyMs, promptTokens, completionTokens, totalTokens int64, costUSD float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = $2, response_payload = $3, latency_ms = $4,
		 prompt_tokens = $5, completion_tokens = $6, total_tokens = $7, cost_usd = $8, completed_at = now()
		 WHERE id = $1`,
		id, string(domain.StatusCompleted), responsePayload, latencyMs, promptTokens, completionTokens, totalTokens, costUSD)
	return err
}

// FailRequest marks a Request row failed. It is best-effort: the
// orchestrator discards its error rather than escalating it.
func (s *AccountingStore) FailRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = $2, completed_at = now() WHERE id = $1`, id, string(domain.StatusFailed))
	return err
}

// CancelRequest marks a Request row canceled, skipping usage accounting.
func (s *AccountingStore) CancelRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = $2, completed_at = now() WHERE id = $1`, id, string(domain.StatusCanceled))
	return err
}

// InsertUsageEvent records one completed request's billable usage.
func (s *AccountingStore) InsertUsageEvent(ctx context.Context, tenantID, requestID, model string, tokens int64, costUSD float64) error {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, tenant_id, request_id, model, tokens, cost_usd) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, tenantID, requestID, model, tokens, costUSD)
	return err
}

// DailyUsage sums today's UsageEvent tokens and cost for tenantID.
// "Today" is the database's current date in its session time zone.
func (s *AccountingStore) DailyUsage(ctx context.Context, tenantID string) (tokens int64, costUSD float64, err error) {
	var tok sql.NullInt64
	var cost sql.NullFloat64
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_events WHERE tenant_id = $1 AND created_at::date = now()::date`, tenantID)
	if err := row.Scan(&tok, &cost); err != nil {
		return 0, 0, err
	}
	return tok.Int64, cost.Float64, nil
}

// UsageSummary aggregates all-time counts for the admin usage endpoint.
type UsageSummary struct {
	TotalRequests int64
	TotalTokens   int64
	TotalCostUSD  float64
}

func (s *AccountingStore) UsageSummary(ctx context.Context, tenantID string) (UsageSummary, error) {
	var out UsageSummary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_events WHERE tenant_id = $1`, tenantID)
	if err := row.Scan(&out.TotalRequests, &out.TotalTokens, &out.TotalCostUSD); err != nil {
		return UsageSummary{}, err
	}
	return out, nil
}

type AdminActionStore struct {
	db *DB
}

func NewAdminActionStore(db *DB) *AdminActionStore {
	return &AdminActionStore{db: db}
}

// Log appends an audit row. Errors are returned so admin handlers can decide
// whether to fail the mutating operation or proceed best-effort.
func (s *AdminActionStore) Log(ctx context.Context, actorTenantID *string, action, targetType string, targetID, metadataJSON *string) error {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_actions (id, actor_tenant_id, action, target_type, target_id, metadata_json)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, actorTenantID, action, targetType, targetID, metadataJSON)
	return err
}

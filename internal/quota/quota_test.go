package quota

import (
	"context"
	"testing"

	"llmgateway/internal/domain"
	"llmgateway/internal/store"
)

// fakeAccounting satisfies store.AccountingReadWriter without a database;
// only DailyUsage is exercised by Guard.Check.
type fakeAccounting struct {
	tokensUsed int64
	costUsed   float64
	err        error
}

func (f *fakeAccounting) CreateRequest(context.Context, string, string, string) (*domain.Request, error) {
	return nil, nil
}
func (f *fakeAccounting) CompleteRequest(context.Context, string, string, int64, int64, int64, int64, float64) error {
	return nil
}
func (f *fakeAccounting) FailRequest(context.Context, string) error   { return nil }
func (f *fakeAccounting) CancelRequest(context.Context, string) error { return nil }
func (f *fakeAccounting) InsertUsageEvent(context.Context, string, string, string, int64, float64) error {
	return nil
}
func (f *fakeAccounting) DailyUsage(ctx context.Context, tenantID string) (int64, float64, error) {
	return f.tokensUsed, f.costUsed, f.err
}
func (f *fakeAccounting) UsageSummary(context.Context, string) (store.UsageSummary, error) {
	return store.UsageSummary{}, nil
}

func ptrInt64(n int64) *int64       { return &n }
func ptrFloat64(f float64) *float64 { return &f }

func TestGuard_CheckNoLimitsConfigured(t *testing.T) {
	g := New(&fakeAccounting{tokensUsed: 1_000_000})
	tenant := &domain.Tenant{ID: "t1"}

	d, err := g.Check(context.Background(), tenant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed when neither limit is configured")
	}
}

func TestGuard_CheckTokenLimitExceeded(t *testing.T) {
	g := New(&fakeAccounting{tokensUsed: 500})
	tenant := &domain.Tenant{ID: "t1", TokenLimitPerDay: ptrInt64(500)}

	d, err := g.Check(context.Background(), tenant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denied once usage reaches the token limit")
	}
	if d.Reason != "token_limit" {
		t.Fatalf("reason = %q, want token_limit", d.Reason)
	}
	if d.TokensRemaining == nil || *d.TokensRemaining != 0 {
		t.Fatalf("TokensRemaining = %v, want 0", d.TokensRemaining)
	}
}

func TestGuard_CheckSpendLimitExceeded(t *testing.T) {
	g := New(&fakeAccounting{costUsed: 10.0})
	tenant := &domain.Tenant{ID: "t1", SpendLimitPerDayUSD: ptrFloat64(10.0)}

	d, err := g.Check(context.Background(), tenant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denied once usage reaches the spend limit")
	}
	if d.Reason != "spend_limit" {
		t.Fatalf("reason = %q, want spend_limit", d.Reason)
	}
}

func TestGuard_CheckWithinLimitsReportsRemaining(t *testing.T) {
	g := New(&fakeAccounting{tokensUsed: 300, costUsed: 1.5})
	tenant := &domain.Tenant{ID: "t1", TokenLimitPerDay: ptrInt64(1000), SpendLimitPerDayUSD: ptrFloat64(5.0)}

	d, err := g.Check(context.Background(), tenant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowed while under both limits")
	}
	if d.TokensRemaining == nil || *d.TokensRemaining != 700 {
		t.Fatalf("TokensRemaining = %v, want 700", d.TokensRemaining)
	}
	if d.SpendRemaining == nil || *d.SpendRemaining != 3.5 {
		t.Fatalf("SpendRemaining = %v, want 3.5", d.SpendRemaining)
	}
}

func TestGuard_CheckPropagatesStoreError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	g := New(&fakeAccounting{err: wantErr})
	tenant := &domain.Tenant{ID: "t1", TokenLimitPerDay: ptrInt64(1000)}

	_, err := g.Check(context.Background(), tenant)
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

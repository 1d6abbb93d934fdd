package quota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/tenant"
)

type fakeLedger struct {
	mu       sync.Mutex
	counters map[string]int64
	calls    []CallRecord
	recorded chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		counters: make(map[string]int64),
		recorded: make(chan struct{}, 16),
	}
}

func (l *fakeLedger) Usage(ctx context.Context, tenantID uuid.UUID, resource string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[tenantID.String()+":"+resource], nil
}

func (l *fakeLedger) Adjust(ctx context.Context, tenantID uuid.UUID, resource string, delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[tenantID.String()+":"+resource] += delta
	return nil
}

func (l *fakeLedger) RecordCall(ctx context.Context, tenantID uuid.UUID, rec CallRecord) error {
	l.mu.Lock()
	l.calls = append(l.calls, rec)
	l.mu.Unlock()
	l.recorded <- struct{}{}
	return nil
}

func newTestEnforcer(t *testing.T) (*Enforcer, *fakeLedger) {
	t.Helper()
	ledger := newFakeLedger()
	writer := apperror.NewWriter(zap.NewNop(), false)
	return NewEnforcer(ledger, zap.NewNop(), writer), ledger
}

func freeTenant() tenant.Tenant {
	return tenant.Tenant{ID: uuid.New(), Subdomain: "clinic-one", Plan: tenant.PlanFree, IsActive: true}
}

func TestCheckUserCreationUnderLimit(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()

	require.NoError(t, ledger.Adjust(context.Background(), tn.ID, ResourceUsers, 4))
	require.NoError(t, enforcer.CheckUserCreation(context.Background(), tn))
}

func TestCheckUserCreationAtLimit(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()

	require.NoError(t, ledger.Adjust(context.Background(), tn.ID, ResourceUsers, 5))

	err := enforcer.CheckUserCreation(context.Background(), tn)
	require.Error(t, err)

	appErr, ok := apperror.AsError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, appErr.Status)
	require.Contains(t, appErr.Message, "plan limit reached")
	require.Contains(t, appErr.Message, "free plan allows 5 users")
}

func TestCheckUserCreationUnlimitedPlan(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()
	tn.Plan = tenant.PlanEnterprise

	require.NoError(t, ledger.Adjust(context.Background(), tn.ID, ResourceUsers, 1_000_000))
	require.NoError(t, enforcer.CheckUserCreation(context.Background(), tn))
}

func TestRecordUserDelta(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()

	enforcer.RecordUserDelta(context.Background(), tn.ID, 1)
	enforcer.RecordUserDelta(context.Background(), tn.ID, 1)
	enforcer.RecordUserDelta(context.Background(), tn.ID, -1)

	usage, err := ledger.Usage(context.Background(), tn.ID, ResourceUsers)
	require.NoError(t, err)
	require.Equal(t, int64(1), usage)
}

func TestEnforceUserLimitMiddleware(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()

	var handled bool
	handler := enforcer.EnforceUserLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handled = true
		w.WriteHeader(http.StatusCreated)
	}))

	// Master-scope requests are not gated.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, handled)

	// At the ceiling the create is denied before the handler runs.
	require.NoError(t, ledger.Adjust(context.Background(), tn.ID, ResourceUsers, 5))
	handled = false
	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	req = req.WithContext(tenant.WithScope(req.Context(), tenant.Scope{Tenant: tn}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, handled)

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "quota_exceeded", payload.Error.Code)
}

func TestTrackUsageRecordsAfterResponse(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)
	tn := freeTenant()

	handler := enforcer.TrackUsage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req = req.WithContext(tenant.WithScope(req.Context(), tenant.Scope{Tenant: tn}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-ledger.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("usage record was never written")
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	require.Len(t, ledger.calls, 1)
	require.Equal(t, "/patients", ledger.calls[0].Path)
	require.Equal(t, http.StatusOK, ledger.calls[0].Status)
}

func TestTrackUsageSkipsMasterScope(t *testing.T) {
	enforcer, ledger := newTestEnforcer(t)

	handler := enforcer.TrackUsage(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-ledger.recorded:
		t.Fatal("master-scope request must not be recorded")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLimitsForPlans(t *testing.T) {
	require.Equal(t, int64(5), LimitsFor(tenant.PlanFree).Users)
	require.Equal(t, int64(25), LimitsFor(tenant.PlanStarter).Users)
	require.Equal(t, int64(100), LimitsFor(tenant.PlanPro).Users)
	require.Equal(t, Unlimited, LimitsFor(tenant.PlanEnterprise).Users)
}

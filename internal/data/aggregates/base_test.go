package aggregates

import (
	"context"
	"testing"
	"time"

	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/platform/dbctx"
)

func TestExecuteWriteReportsOutcome(t *testing.T) {
	cases := []struct {
		name          string
		body          error
		wantStatus    string
		wantConflicts int
		wantRetries   int
	}{
		{"success", nil, "success", 0, 0},
		{"invariant", InvariantError("negative points"), string(domainagg.CodeInvariantViolation), 0, 0},
		{"conflict", ConflictError("stale version"), string(domainagg.CodeConflict), 1, 0},
		{"retryable", RetryableError("lock timeout"), string(domainagg.CodeRetryable), 0, 1},
		{"deadline", context.DeadlineExceeded, string(domainagg.CodeRetryable), 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			err := executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner{}, Hooks: hooks}, "progress.test",
				func(_ dbctx.Context) error { return tc.body })
			if (err == nil) != (tc.body == nil) {
				t.Fatalf("err=%v", err)
			}
			if len(hooks.Operations) != 1 || hooks.Operations[0].Status != tc.wantStatus {
				t.Fatalf("operations=%+v", hooks.Operations)
			}
			if len(hooks.Conflicts) != tc.wantConflicts || len(hooks.Retries) != tc.wantRetries {
				t.Fatalf("conflicts=%v retries=%v", hooks.Conflicts, hooks.Retries)
			}
		})
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) { h.Conflicts = append(h.Conflicts, name) }

func (h *spyHooks) IncRetry(name string) { h.Retries = append(h.Retries, name) }

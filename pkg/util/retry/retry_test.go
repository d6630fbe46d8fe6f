package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/reconcile"
)

func TestPolicy_Do(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	tests := map[string]struct {
		policy       Policy
		succeedAfter int // 0 means never
		condErr      error
		wantCalls    int
		wantErr      error
	}{
		"succeeds first try": {
			policy:       Policy{Attempts: 5},
			succeedAfter: 1,
			wantCalls:    1,
		},
		"succeeds on last attempt": {
			policy:       Policy{Attempts: 3, OnExhaustion: Fail},
			succeedAfter: 3,
			wantCalls:    3,
		},
		"warn and continue on exhaustion": {
			policy:    Policy{Attempts: 4, OnExhaustion: WarnAndContinue},
			wantCalls: 4,
		},
		"fail on exhaustion": {
			policy:    Policy{Attempts: 2, OnExhaustion: Fail},
			wantCalls: 2,
			wantErr:   ErrExhausted,
		},
		"fail keeps last error": {
			policy:    Policy{Attempts: 2, OnExhaustion: Fail},
			condErr:   errBoom,
			wantCalls: 2,
			wantErr:   errBoom,
		},
		"terminal error stops immediately": {
			policy:    Policy{Attempts: 10, OnExhaustion: WarnAndContinue},
			condErr:   reconcile.TerminalError(errBoom),
			wantCalls: 1,
			wantErr:   errBoom,
		},
		"zero attempts still polls once": {
			policy:    Policy{Attempts: 0, OnExhaustion: Fail},
			wantCalls: 1,
			wantErr:   ErrExhausted,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := tc.policy.Do(t.Context(), "test", func(context.Context) (bool, error) {
				calls++
				if tc.condErr != nil {
					return false, tc.condErr
				}
				return tc.succeedAfter != 0 && calls >= tc.succeedAfter, nil
			})

			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want wrapping %v", err, tc.wantErr)
			}
		})
	}
}

func TestPolicy_Do_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p := Policy{Attempts: 100, Interval: time.Hour, OnExhaustion: WarnAndContinue}
	err := p.Do(ctx, "test", func(context.Context) (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	if err := Sleep(t.Context(), 0); err != nil {
		t.Fatalf("Sleep(0) = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep(cancelled) = %v, want context.Canceled", err)
	}
}

func TestDefaultPolicies(t *testing.T) {
	t.Parallel()

	p := DefaultPolicies()
	if p.Connect.Attempts != 600 || p.Connect.OnExhaustion != Fail {
		t.Errorf("Connect = %+v", p.Connect)
	}
	if p.InitReady.Attempts != 300 || p.InitReady.OnExhaustion != WarnAndContinue {
		t.Errorf("InitReady = %+v", p.InitReady)
	}
	if p.ClusterStatus.Attempts != 60 {
		t.Errorf("ClusterStatus = %+v", p.ClusterStatus)
	}
	if p.Primary.Attempts != 1 || p.Primary.OnExhaustion != Fail {
		t.Errorf("Primary = %+v", p.Primary)
	}

	fast := Immediate()
	if fast.Connect.Interval != 0 || fast.InitSettle != 0 || fast.Connect.Attempts != 600 {
		t.Errorf("Immediate() = %+v", fast)
	}
}

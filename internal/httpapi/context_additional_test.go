package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	//nolint:staticcheck // SA1012: nil selects Background
	SetBaseContext(nil)
	cancel()
	if serverBaseCtx.Err() != nil {
		t.Fatal("base context still bound to the canceled context")
	}
	// join with a short-lived context and ensure cancel triggers
	a, ac := context.WithCancel(context.Background())
	j, cancelJ := joinContexts(a, serverBaseCtx)
	defer cancelJ()
	ac()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel after parent canceled")
	}
}

func TestJoinContexts_CancelsWhenEitherDone(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	// cancel A and expect joined canceled
	ac()
	select {
	case <-j.Done():
		// ok
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when first parent canceled")
	}
}

type ctxKey struct{}

func TestJoinContexts_KeepsRequestValues(t *testing.T) {
	b := context.WithValue(context.Background(), ctxKey{}, "rid")
	j, cancel := joinContexts(context.Background(), b)
	defer cancel()
	if j.Value(ctxKey{}) != "rid" {
		t.Fatal("joined context lost request values")
	}
}

func TestJoinContexts_AlreadyCanceled(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	ac()
	j, cancel := joinContexts(a, context.Background())
	defer cancel()
	if j.Err() == nil {
		t.Fatal("joined context should start canceled")
	}
}

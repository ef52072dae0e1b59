package breaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterFailures(t *testing.T) {
	b := New(Settings{Name: "test-open"}, nil)

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestBreakerIgnoresSuccessfulErrors(t *testing.T) {
	errRejected := errors.New("rejected")
	b := New(Settings{
		Name:         "test-domain",
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errRejected) },
	}, nil)

	for i := 0; i < 5; i++ {
		if err := b.Do(func() error { return errRejected }); !errors.Is(err, errRejected) {
			t.Fatalf("call %d: expected rejected, got %v", i, err)
		}
	}

	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed state, got %s", b.State())
	}
}

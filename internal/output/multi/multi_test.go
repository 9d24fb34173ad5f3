package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/hejijunhao/statusreport/internal/model"
)

// mockOutput records calls for test assertions.
type mockOutput struct {
	bundles []*model.ReportBundle
	closed  bool
	err     error // if set, Write and Close return this error
}

func (m *mockOutput) Write(_ context.Context, b *model.ReportBundle) error {
	m.bundles = append(m.bundles, b)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closed = true
	return m.err
}

func TestFanOutDeliversToAll(t *testing.T) {
	a, b, c := &mockOutput{}, &mockOutput{}, &mockOutput{}
	m := New(a, b, c)

	bundle := &model.ReportBundle{RunID: "run-1", Company: "Acme"}
	if err := m.Write(context.Background(), bundle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, out := range []*mockOutput{a, b, c} {
		if len(out.bundles) != 1 || out.bundles[0].RunID != "run-1" {
			t.Errorf("output %d: got %d bundles", i, len(out.bundles))
		}
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	failing := &mockOutput{err: errors.New("disk full")}
	healthy := &mockOutput{}
	m := New(failing, healthy)

	err := m.Write(context.Background(), &model.ReportBundle{RunID: "run-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(healthy.bundles) != 1 {
		t.Fatalf("healthy output got %d bundles, want 1", len(healthy.bundles))
	}
	if !errors.Is(err, failing.err) {
		t.Errorf("error should wrap the sink error, got %v", err)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	a := &mockOutput{err: errors.New("err-a")}
	b := &mockOutput{err: errors.New("err-b")}
	m := New(a, b)

	err := m.Close()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !a.closed || !b.closed {
		t.Error("Close should be called on all outputs even when errors occur")
	}
	want := "sink 0 (*multi.mockOutput): err-a\nsink 1 (*multi.mockOutput): err-b"
	if err.Error() != want {
		t.Errorf("joined error = %q, want %q", err.Error(), want)
	}
}

// blockingOutput waits until released, to prove sinks run side by side.
type blockingOutput struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingOutput) Write(context.Context, *model.ReportBundle) error {
	close(b.started)
	<-b.release
	return nil
}

func (b *blockingOutput) Close() error { return nil }

func TestSlowSinkDoesNotDelayOthers(t *testing.T) {
	slow := &blockingOutput{started: make(chan struct{}), release: make(chan struct{})}
	fast := &mockOutput{}
	m := New(slow, fast)

	done := make(chan error, 1)
	go func() { done <- m.Write(context.Background(), &model.ReportBundle{RunID: "run-1"}) }()

	<-slow.started
	select {
	case <-done:
		t.Fatal("Write returned before the slow sink finished")
	default:
	}
	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fast.bundles) != 1 {
		t.Errorf("fast sink got %d bundles, want 1", len(fast.bundles))
	}
}

func TestEmptyMulti(t *testing.T) {
	m := New()
	if err := m.Write(context.Background(), &model.ReportBundle{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

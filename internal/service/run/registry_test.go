package run

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinyue/next-datakit/internal/observability"
	"github.com/ashwinyue/next-datakit/internal/service/pipeline"
)

// blockingRunner 在 release 关闭前阻塞
type blockingRunner struct {
	release chan struct{}
	err     error
}

func (b *blockingRunner) RunWithID(ctx context.Context, runID string) (*pipeline.Summary, error) {
	<-b.release
	return &pipeline.Summary{RunID: runID, Status: "success"}, b.err
}

// ========== Registry 测试 ==========

func TestRegistry_RejectsConcurrentRun(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	r := NewRegistry(runner, observability.Discard())

	first, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if first.Status != StatusRunning {
		t.Errorf("Status = %q", first.Status)
	}
	if active, ok := r.Active(); !ok || active.ID != first.ID {
		t.Errorf("Active() = %+v, %v", active, ok)
	}

	if _, err := r.Start(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Start() error = %v, want ErrRunInProgress", err)
	}

	close(runner.release)
	r.Wait()

	got, err := r.Get(first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusSucceeded || got.Summary == nil || got.Summary.RunID != first.ID || got.FinishedAt == nil {
		t.Errorf("run = %+v", got)
	}
	if _, ok := r.Active(); ok {
		t.Error("no run should be active")
	}

	// 结束后可以再次启动
	if _, err := r.Start(context.Background()); err != nil {
		t.Errorf("Start() after finish error = %v", err)
	}
	r.Wait()
	if runs := r.List(); len(runs) != 2 || runs[1].ID != first.ID {
		t.Errorf("List() = %+v", runs)
	}
}

func TestRegistry_FailedRun(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), err: pipeline.ErrNoDocuments}
	close(runner.release)
	r := NewRegistry(runner, observability.Discard())

	run, _ := r.Start(context.Background())
	r.Wait()

	got, _ := r.Get(run.ID)
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("run = %+v", got)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(&blockingRunner{}, observability.Discard())
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
}

func TestRegistry_IgnoresCallerCancellation(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	r := NewRegistry(runner, observability.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	run, _ := r.Start(ctx)
	cancel()
	close(runner.release)
	r.Wait()

	if got, _ := r.Get(run.ID); got.Status != StatusSucceeded {
		t.Errorf("Status = %q", got.Status)
	}
}

// Package run 管理通过 API 触发的流水线运行
package run

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashwinyue/next-datakit/internal/service/pipeline"
)

// historyLimit 保留的历史运行数
const historyLimit = 50

var (
	// ErrRunInProgress 已有运行在进行中
	ErrRunInProgress = errors.New("a pipeline run is already in progress")
	// ErrNotFound 运行不存在
	ErrNotFound = errors.New("run not found")
)

// Status 运行状态
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Runner 执行一次流水线
type Runner interface {
	RunWithID(ctx context.Context, runID string) (*pipeline.Summary, error)
}

// Run 一次运行的状态快照
type Run struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Summary    *pipeline.Summary `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Registry 同一时间只允许一个运行
type Registry struct {
	runner Runner
	logger *slog.Logger
	newID  func() string

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string // 按开始时间排序
	active string
	wg     sync.WaitGroup
}

// NewRegistry 创建运行注册表
func NewRegistry(runner Runner, logger *slog.Logger) *Registry {
	return &Registry{
		runner: runner,
		logger: logger.With("component", "run_registry"),
		newID:  uuid.NewString,
		runs:   make(map[string]*Run),
	}
}

// Start 在后台启动一次运行
// 运行不随 ctx 取消，ctx 只用于传递链路等值
func (r *Registry) Start(ctx context.Context) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != "" {
		return Run{}, ErrRunInProgress
	}

	run := &Run{ID: r.newID(), Status: StatusRunning, StartedAt: time.Now()}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	r.active = run.ID
	r.trim()

	r.wg.Add(1)
	go r.execute(context.WithoutCancel(ctx), run.ID)

	r.logger.InfoContext(ctx, "run started", "run_id", run.ID)
	return *run, nil
}

func (r *Registry) execute(ctx context.Context, id string) {
	defer r.wg.Done()

	summary, err := r.runner.RunWithID(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	run := r.runs[id]
	run.FinishedAt = &now
	run.Summary = summary
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		r.logger.ErrorContext(ctx, "run failed", "run_id", id, "error", err)
	} else {
		run.Status = StatusSucceeded
		r.logger.InfoContext(ctx, "run finished", "run_id", id)
	}
	r.active = ""
}

// trim 超出上限时删除最早的已完成运行，需持有锁
func (r *Registry) trim() {
	for len(r.order) > historyLimit {
		oldest := r.order[0]
		if oldest == r.active {
			return
		}
		delete(r.runs, oldest)
		r.order = r.order[1:]
	}
}

// Get 查询运行
func (r *Registry) Get(id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return *run, nil
}

// List 返回所有运行，最新的在前
func (r *Registry) List() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.order))
	for _, id := range slices.Backward(r.order) {
		out = append(out, *r.runs[id])
	}
	return out
}

// Active 当前运行
func (r *Registry) Active() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return Run{}, false
	}
	return *r.runs[r.active], true
}

// Wait 等待所有运行结束
func (r *Registry) Wait() {
	r.wg.Wait()
}

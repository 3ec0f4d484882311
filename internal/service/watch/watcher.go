// Package watch 监听输入目录，新文档到达后触发流水线
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 默认合并窗口
const DefaultDebounce = 2 * time.Second

// TriggerFunc 收到一批变化后调用，files 为本批变化的文件
type TriggerFunc func(ctx context.Context, files []string) error

// Config 监听配置
type Config struct {
	Dir        string
	Extensions []string
	// Debounce 最后一次变化后等待的时间，期间的变化合并为一次触发
	Debounce time.Duration
}

// Watcher 输入目录监听器
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	trigger    TriggerFunc
	logger     *slog.Logger
}

// New 创建监听器并开始监听目录
func New(cfg Config, trigger TriggerFunc, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(cfg.Dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exts := make([]string, len(cfg.Extensions))
	for i, e := range cfg.Extensions {
		exts[i] = strings.ToLower(e)
	}

	return &Watcher{
		watcher:    w,
		extensions: exts,
		debounce:   debounce,
		trigger:    trigger,
		logger:     logger.With("component", "watch", "dir", cfg.Dir),
	}, nil
}

// Run 处理事件直到 ctx 结束
// 触发在当前 goroutine 中同步执行，运行期间到达的变化会在结束后合并触发
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.InfoContext(ctx, "watching for new documents", "extensions", w.extensions, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watcher error", "error", err)

		case <-timerC:
			timerC = nil
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			clear(pending)
			slices.Sort(files)

			w.logger.InfoContext(ctx, "input changed, triggering run", "files", len(files))
			if err := w.trigger(ctx, files); err != nil {
				w.logger.ErrorContext(ctx, "triggered run failed", "error", err)
			}
		}
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// relevant 只关注匹配扩展名的创建、写入与重命名
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(event.Name)))
}

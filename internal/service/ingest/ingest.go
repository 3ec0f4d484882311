package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/observability"
)

// Failure 单个文档的解析失败
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Service 文档解析服务
type Service struct {
	pdfBackend string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewService 创建解析服务，metrics 可以为 nil
func NewService(pdfBackend string, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		pdfBackend: pdfBackend,
		logger:     logger.With("component", "ingest"),
		metrics:    metrics,
	}
}

// ParseFile 提取并清洗单个文件的文本
// 清洗后为空时返回 ErrEmptyDocument
func (s *Service) ParseFile(ctx context.Context, path string) (*model.Document, error) {
	raw, err := extract(ctx, path, s.pdfBackend)
	if err != nil {
		s.record("error")
		return nil, err
	}

	text := Clean(raw)
	if text == "" {
		s.record("error")
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	name := filepath.Base(path)
	chars := utf8.RuneCountInString(text)
	s.record("success")
	s.logger.InfoContext(ctx, "document parsed", "file", name, "characters", chars)
	return &model.Document{
		Name:  name,
		Stem:  strings.TrimSuffix(name, filepath.Ext(name)),
		Path:  path,
		Text:  text,
		Chars: chars,
	}, nil
}

// LoadDir 解析目录下所有匹配扩展名的文件
// 单个文件失败会被记录并跳过，不影响其它文件
func (s *Service) LoadDir(ctx context.Context, dir string, extensions []string) ([]*model.Document, []Failure, error) {
	paths, err := Discover(dir, extensions)
	if err != nil {
		return nil, nil, err
	}

	var (
		docs     []*model.Document
		failures []Failure
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return docs, failures, err
		}
		doc, err := s.ParseFile(ctx, p)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to parse document", "file", p, "error", err)
			failures = append(failures, Failure{Path: p, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, failures, nil
}

func (s *Service) record(status string) {
	if s.metrics != nil {
		s.metrics.DocumentsIngested.WithLabelValues(status).Inc()
	}
}

// Discover 列出目录下扩展名匹配的文件（不递归，按名称排序）
// 扩展名比较不区分大小写
func Discover(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	exts := make([]string, len(extensions))
	for i, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = e
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if slices.Contains(exts, ext) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Package export 将生成结果写入本地文件
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/model"
)

// 输出子目录
const (
	DirParsed    = "parsed"
	DirGenerated = "generated"
	DirCurated   = "curated"

	// DatasetFile 最终数据集文件名
	DatasetFile = "final_training_dataset.json"
)

// ErrInvalidPath 路径越出输出目录
var ErrInvalidPath = errors.New("path escapes output directory")

// Writer 本地文件写入器
type Writer struct {
	basePath string // 输出根目录
	logger   *slog.Logger
}

// NewWriter 创建写入器
func NewWriter(basePath string, logger *slog.Logger) (*Writer, error) {
	// 确保输出目录存在
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{
		basePath: basePath,
		logger:   logger.With("component", "export"),
	}, nil
}

// BasePath 输出根目录
func (w *Writer) BasePath() string {
	return w.basePath
}

// WriteParsedText 保存清洗后的文档文本: parsed/<stem>.txt
func (w *Writer) WriteParsedText(stem, text string) (string, error) {
	return w.writeFile(filepath.Join(DirParsed, stem+".txt"), []byte(text))
}

// WritePairs 保存生成的样本: generated/<doc>_<kind>.json
func (w *Writer) WritePairs(doc string, kind model.Kind, pairs []model.Pair) (string, error) {
	if pairs == nil {
		pairs = []model.Pair{}
	}
	return w.writeJSON(filepath.Join(DirGenerated, fmt.Sprintf("%s_%s.json", doc, kind)), pairs)
}

// WriteCurated 保存筛选后的样本: curated/<doc>_<kind>_curated.json
func (w *Writer) WriteCurated(doc string, kind model.Kind, pairs []model.Pair) (string, error) {
	if pairs == nil {
		pairs = []model.Pair{}
	}
	return w.writeJSON(filepath.Join(DirCurated, fmt.Sprintf("%s_%s_curated.json", doc, kind)), pairs)
}

// WriteToolUse 保存工具调用对话
// generated/<doc>_tool_use.jsonl 每行一条，同时写入格式化的 .json 便于查看
func (w *Writer) WriteToolUse(doc string, convs []model.ToolConversation) (string, error) {
	if convs == nil {
		convs = []model.ToolConversation{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, c := range convs {
		if err := enc.Encode(c); err != nil {
			return "", fmt.Errorf("encode conversation: %w", err)
		}
	}

	base := filepath.Join(DirGenerated, doc+"_tool_use")
	path, err := w.writeFile(base+".jsonl", buf.Bytes())
	if err != nil {
		return "", err
	}
	if _, err := w.writeJSON(base+".json", convs); err != nil {
		return "", err
	}
	return path, nil
}

// WriteDataset 保存最终数据集，name 为空时使用 DatasetFile
func (w *Writer) WriteDataset(name string, d *model.Dataset) (string, error) {
	if name == "" {
		name = DatasetFile
	}
	return w.writeJSON(name, d)
}

// ReadPairs 读取样本文件，单个对象视为一条
func (w *Writer) ReadPairs(relativePath string) ([]model.Pair, error) {
	data, err := w.Read(relativePath)
	if err != nil {
		return nil, err
	}
	return DecodePairs(data)
}

// ReadDataset 读取最终数据集
func (w *Writer) ReadDataset(name string) (*model.Dataset, error) {
	if name == "" {
		name = DatasetFile
	}
	data, err := w.Read(name)
	if err != nil {
		return nil, err
	}
	var d model.Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &d, nil
}

// ReadToolUse 读取 JSONL 格式的工具调用对话
func (w *Writer) ReadToolUse(relativePath string) ([]model.ToolConversation, error) {
	data, err := w.Read(relativePath)
	if err != nil {
		return nil, err
	}

	var convs []model.ToolConversation
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c model.ToolConversation
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", relativePath, err)
	}
	return convs, nil
}

// Read 读取输出目录下的文件
func (w *Writer) Read(relativePath string) ([]byte, error) {
	fullPath, err := w.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// List 列出子目录下的文件名，目录不存在时返回空
func (w *Writer) List(dir string) ([]string, error) {
	fullPath, err := w.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// DecodePairs 解码样本数组或单个样本对象
func DecodePairs(data []byte) ([]model.Pair, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	pairs := model.PairsFromValue(v)
	if pairs == nil {
		return nil, fmt.Errorf("decode pairs: expected object or array, got %T", v)
	}
	return pairs, nil
}

func (w *Writer) writeJSON(relativePath string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode %s: %w", relativePath, err)
	}
	return w.writeFile(relativePath, buf.Bytes())
}

func (w *Writer) writeFile(relativePath string, data []byte) (string, error) {
	fullPath, err := w.resolve(relativePath)
	if err != nil {
		return "", err
	}

	// 创建目录
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	w.logger.Debug("artifact written", "path", fullPath, "bytes", len(data))
	return fullPath, nil
}

// resolve 将相对路径限制在输出目录内
func (w *Writer) resolve(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, relativePath)
	}
	return filepath.Join(w.basePath, clean), nil
}

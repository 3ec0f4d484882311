// Package chunk 提供固定窗口的文本分块
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-datakit/internal/model"
)

// ErrInvalidWindow 窗口参数非法
var ErrInvalidWindow = errors.New("invalid chunk window")

// Config 分块配置
type Config struct {
	Size    int // 窗口大小（字符数）
	Overlap int // 相邻窗口重叠的字符数
}

// Validate 校验窗口参数，要求 0 <= overlap < size
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidWindow, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidWindow, c.Overlap, c.Size)
	}
	return nil
}

// Split 按滑动窗口切分文本
// 窗口以 rune 计数；步长为 size-overlap；空白窗口被跳过，保留的窗口不做裁剪
func Split(text string, size, overlap int) ([]string, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks, nil
}

// Chunker 带配置的分块器
type Chunker struct {
	cfg Config
}

// New 创建分块器，窗口参数非法时返回错误
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config 返回分块配置
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split 使用当前配置切分文本
func (c *Chunker) Split(text string) []string {
	// 配置已在 New 中校验
	chunks, _ := Split(text, c.cfg.Size, c.cfg.Overlap)
	return chunks
}

// Chunks 切分文本并标注来源与序号
func (c *Chunker) Chunks(source, text string) []model.Chunk {
	texts := c.Split(text)
	chunks := make([]model.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = model.Chunk{Text: t, Source: source, Index: i}
	}
	return chunks
}

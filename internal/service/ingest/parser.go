// Package ingest 提供文档文本提取与清洗
// 直接使用 eino-ext 解析器组件，PDF 可切换为 ledongthuc/pdf
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/html"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	plainpdf "github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/ashwinyue/next-datakit/internal/config"
)

var (
	// ErrUnsupportedType 不支持的文件类型
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyDocument 文档中没有可提取的文本
	ErrEmptyDocument = errors.New("no text extracted from document")
)

// Clean 清洗提取出的文本
// 移除 NUL 与 U+FFFD，NFC 规范化后将连续空白折叠为单个空格
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\ufffd", "")
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// newParser 按扩展名创建解析器
func newParser(ctx context.Context, ext, pdfBackend string) (einoparser.Parser, error) {
	switch ext {
	case ".pdf":
		if pdfBackend == config.PDFBackendPlain {
			return &plainPDFParser{}, nil
		}
		return pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	case ".docx":
		return docx.NewDocxParser(ctx, &docx.Config{
			ToSections:      false,
			IncludeComments: false,
			IncludeHeaders:  true,
			IncludeFooters:  false,
			IncludeTables:   true,
		})
	case ".html", ".htm":
		bodySelector := "body"
		return html.NewParser(ctx, &html.Config{
			Selector: &bodySelector,
		})
	case ".txt", ".md":
		return &textParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// Supported 判断扩展名是否有对应解析器
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".html", ".htm", ".txt", ".md":
		return true
	}
	return false
}

// textParser 纯文本解析器
type textParser struct{}

func (p *textParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	text := string(content)
	if text == "" {
		return []*schema.Document{}, nil
	}

	return []*schema.Document{
		{
			Content:  text,
			MetaData: make(map[string]any),
		},
	}, nil
}

// plainPDFParser 基于 ledongthuc/pdf 的纯文本提取
type plainPDFParser struct{}

func (p *plainPDFParser) Parse(_ context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	r, err := plainpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	b, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract plain text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}

	return []*schema.Document{
		{
			Content:  buf.String(),
			MetaData: make(map[string]any),
		},
	}, nil
}

// extract 使用解析器读取文件并拼接全部文本
func extract(ctx context.Context, path, pdfBackend string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fileParser, err := newParser(ctx, ext, pdfBackend)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	docs, err := fileParser.Parse(ctx, file, einoparser.WithURI(path))
	if err != nil {
		return "", fmt.Errorf("parser failed: %w", err)
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d != nil && d.Content != "" {
			parts = append(parts, d.Content)
		}
	}
	return strings.Join(parts, "\n"), nil
}

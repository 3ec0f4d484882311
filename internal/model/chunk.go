package model

// Chunk 文档中的一段连续文本
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source_document,omitempty"` // 来源文档
	Index  int    `json:"index"`                     // 文档内顺序
}

// ChunkTexts 提取文本列表
func ChunkTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

// Document 已解析的源文档
type Document struct {
	Name   string  `json:"name"`   // 文件名
	Stem   string  `json:"stem"`   // 去掉扩展名的文件名
	Path   string  `json:"path"`
	Text   string  `json:"-"`
	Chars  int     `json:"chars"`
	Chunks []Chunk `json:"-"`
}

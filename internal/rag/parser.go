package rag

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	"github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/logger"
	"go.uber.org/zap"
)

// FileParser 单一格式的文本抽取器
type FileParser interface {
	Parse(data []byte, filename string) (string, error)
	Supports(mimeType, filename string) bool
}

// TextParser 纯文本
type TextParser struct{}

func (p *TextParser) Supports(mimeType, filename string) bool {
	return strings.Contains(mimeType, "text/plain") ||
		strings.ToLower(filepath.Ext(filename)) == ".txt"
}

func (p *TextParser) Parse(data []byte, filename string) (string, error) {
	return string(data), nil
}

// PDFParser PDF文本抽取，逐页拼接并加页码标记
// 解析失败或仅含空白（扫描件）时降级为占位文本，占位文本本身是合法内容
type PDFParser struct{}

func (p *PDFParser) Supports(mimeType, filename string) bool {
	return strings.Contains(mimeType, "application/pdf") ||
		strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (p *PDFParser) Parse(data []byte, filename string) (string, error) {
	reader, err := pdfmodel.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		logger.Warn("PDF разбор не удался, используем placeholder",
			zap.String("filename", filename), zap.Error(err))
		return pdfPlaceholder(filename, len(data)), nil
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return pdfPlaceholder(filename, len(data)), nil
	}

	var builder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			continue
		}
		// 页内文本项以单空格连接
		pageText := strings.Join(strings.Fields(text), " ")
		builder.WriteString(fmt.Sprintf("\n--- Страница %d ---\n%s\n", i, pageText))
	}

	full := builder.String()
	if strings.TrimSpace(full) == "" {
		logger.Warn("PDF не содержит текста, возможно сканированный документ",
			zap.String("filename", filename))
		return pdfPlaceholder(filename, len(data)), nil
	}
	return full, nil
}

func pdfPlaceholder(filename string, size int) string {
	return fmt.Sprintf(`PDF документ: %s

Содержимое PDF файла временно недоступно.
Возможные причины:
- PDF содержит только изображения (сканированный документ)
- Файл поврежден или имеет специальную защиту

Имя файла: %s
Размер: %d байт
Дата загрузки: %s

Рекомендация: Для лучшего качества RAG загрузите документ в формате DOCX или TXT.`,
		filename, filename, size, time.Now().Format(time.RFC3339))
}

// WordParser DOCX文档，抽取段落原始文本，忽略格式
type WordParser struct{}

func (p *WordParser) Supports(mimeType, filename string) bool {
	return strings.Contains(mimeType, "wordprocessingml.document") ||
		strings.ToLower(filepath.Ext(filename)) == ".docx"
}

func (p *WordParser) Parse(data []byte, filename string) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("разбор DOCX не удался: %w", err)
	}
	defer doc.Close()

	var builder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			builder.WriteString(run.Text())
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// ExcelParser XLSX表格，逐sheet序列化为分隔文本
type ExcelParser struct{}

func (p *ExcelParser) Supports(mimeType, filename string) bool {
	return strings.Contains(mimeType, "spreadsheetml.sheet") ||
		strings.ToLower(filepath.Ext(filename)) == ".xlsx"
}

func (p *ExcelParser) Parse(data []byte, filename string) (string, error) {
	ss, err := spreadsheet.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("разбор XLSX не удался: %w", err)
	}
	defer ss.Close()

	var builder strings.Builder
	for _, sheet := range ss.Sheets() {
		for _, row := range sheet.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				cells = append(cells, cell.GetString())
			}
			if len(cells) > 0 {
				builder.WriteString(strings.Join(cells, "\t"))
				builder.WriteString("\n")
			}
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// CSVParser 带表头识别的CSV，数据行字段以单空格连接
type CSVParser struct{}

func (p *CSVParser) Supports(mimeType, filename string) bool {
	return strings.Contains(mimeType, "text/csv") ||
		strings.ToLower(filepath.Ext(filename)) == ".csv"
}

func (p *CSVParser) Parse(data []byte, filename string) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var lines []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("разбор CSV не удался: %w", err)
		}
		if first {
			// 第一行视为表头，跳过
			first = false
			continue
		}
		lines = append(lines, strings.Join(record, " "))
	}
	return strings.Join(lines, "\n"), nil
}

// ParserManager 按MIME类型优先、文件扩展名兜底的调度器
// 顺序：纯文本 → PDF → DOCX → XLSX → CSV
type ParserManager struct {
	parsers []FileParser
}

func NewParserManager() *ParserManager {
	return &ParserManager{
		parsers: []FileParser{
			&TextParser{},
			&PDFParser{},
			&WordParser{},
			&ExcelParser{},
			&CSVParser{},
		},
	}
}

// Extract 从文件中抽取纯文本
func (m *ParserManager) Extract(data []byte, filename, mimeType string) (string, error) {
	for _, parser := range m.parsers {
		if parser.Supports(mimeType, filename) {
			text, err := parser.Parse(data, filename)
			if err != nil {
				return "", err
			}
			return text, nil
		}
	}
	offending := mimeType
	if offending == "" {
		offending = filename
	}
	return "", apperrors.UnsupportedFileType(offending)
}

// SupportedExtensions 返回支持的文件扩展名
func (m *ParserManager) SupportedExtensions() []string {
	return []string{".txt", ".pdf", ".docx", ".xlsx", ".csv"}
}

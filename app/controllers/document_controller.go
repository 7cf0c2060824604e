package controllers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
)

// DocumentController 知识库文档控制器
type DocumentController struct {
	BaseController
}

// GET /api/documents
func (c *DocumentController) List() {
	if _, ok := c.requireEmployee(); !ok {
		return
	}

	docs, err := documentStore.ListDocuments(c.Ctx.Request.Context())
	if err != nil {
		c.writeError(err)
		return
	}
	c.JSONSuccess(docs)
}

// POST /api/documents
// multipart上传，校验通过后异步摄取，立即返回upload_id供轮询
func (c *DocumentController) Upload() {
	if _, ok := c.requireEmployee(); !ok {
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil || file == nil {
		c.JSONError(http.StatusBadRequest, "Файл не найден в запросе")
		return
	}
	defer file.Close()

	uploadCfg := config.AppConfig.FileUpload
	if uploadCfg.MaxSize > 0 && header.Size > uploadCfg.MaxSize {
		c.JSONError(http.StatusRequestEntityTooLarge, "Файл слишком большой")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extensionAllowed(ext, uploadCfg.AllowedTypes) {
		c.JSONError(http.StatusUnsupportedMediaType, "Неподдерживаемый тип файла: "+ext)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "Не удалось прочитать файл")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	uploadID := progressTracker.Start(header.Filename)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		doc, err := ingestPipeline.Ingest(ctx, header.Filename, mimeType, data, func(stage string, percent int) {
			progressTracker.Update(uploadID, stage, percent)
		})
		if err != nil {
			logger.Error("document ingestion failed",
				zap.String("filename", header.Filename),
				zap.Error(err))
			progressTracker.Fail(uploadID, err)
			return
		}
		progressTracker.Finish(uploadID, doc.ID)
	}()

	c.JSON(http.StatusAccepted, map[string]interface{}{
		"success":   true,
		"upload_id": uploadID,
		"filename":  header.Filename,
	})
}

// GET /api/documents/uploads/:upload_id
func (c *DocumentController) UploadStatus() {
	if _, ok := c.requireEmployee(); !ok {
		return
	}

	uploadID := c.Ctx.Input.Param(":upload_id")
	status, ok := progressTracker.Get(uploadID)
	if !ok {
		c.JSONError(http.StatusNotFound, "Загрузка не найдена")
		return
	}
	c.JSONSuccess(status)
}

// GET /api/documents/status
// 知识库整体状态：表是否创建、文档和chunk数量
func (c *DocumentController) Status() {
	if _, ok := c.requireEmployee(); !ok {
		return
	}
	c.JSONSuccess(documentStore.CheckDatabaseStatus(c.Ctx.Request.Context()))
}

// DELETE /api/documents/:id
func (c *DocumentController) Delete() {
	if _, ok := c.requireEmployee(); !ok {
		return
	}
	documentID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	if err := ingestPipeline.Delete(c.Ctx.Request.Context(), documentID); err != nil {
		c.writeError(err)
		return
	}
	c.JSONSuccess(map[string]string{"message": "Документ удалён"})
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

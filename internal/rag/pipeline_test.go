package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/equipdesk/backend-go/internal/errors"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Ready() bool { return f.err == nil }

type recordedEvents struct {
	ingested []uint
	deleted  []uint
}

func (r *recordedEvents) DocumentIngested(documentID uint, filename string, chunks int) {
	r.ingested = append(r.ingested, documentID)
}

func (r *recordedEvents) DocumentDeleted(documentID uint) {
	r.deleted = append(r.deleted, documentID)
}

func TestPipeline_Ingest_ProgressSequence(t *testing.T) {
	db, mock := newMockDB(t)
	vector := &fakeVectorStore{}
	store := NewStore(db, vector, &fakeFulltextSearcher{}, testRAGConfig())
	pipeline := NewPipeline(store, &fakeEmbedder{}, testRAGConfig())

	events := &recordedEvents{}
	pipeline.WithEvents(events)

	// 2500个无边界符号 → ровно 3 chunk
	text := strings.Repeat("ж", 2500)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "document_chunks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101).AddRow(102).AddRow(103))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET "chunks_count"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var percents []int
	doc, err := pipeline.Ingest(context.Background(), "manual.txt", "text/plain", []byte(text), func(stage string, percent int) {
		percents = append(percents, percent)
	})
	require.NoError(t, err)
	assert.Equal(t, uint(11), doc.ID)
	assert.Equal(t, 3, doc.ChunksCount)

	assert.Equal(t, []int{10, 30, 50, 60, 72, 83, 95, 100}, percents)
	assert.Equal(t, []uint{11}, events.ingested)
	assert.Equal(t, 3, vector.indexed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPipeline_Ingest_AbortsOnEmbeddingFailure(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())
	embedder := &fakeEmbedder{err: apperrors.EmbeddingUnavailable(nil)}
	pipeline := NewPipeline(store, embedder, testRAGConfig())

	// 元数据成功写入，之后嵌入失败摄取中止，孤立记录留在documents表
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	_, err := pipeline.Ingest(context.Background(), "manual.txt", "text/plain", []byte("немного текста"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsEmbeddingUnavailable(err))
	assert.Equal(t, 1, embedder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPipeline_Ingest_UnsupportedFile(t *testing.T) {
	store := NewStore(nil, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())
	pipeline := NewPipeline(store, &fakeEmbedder{}, testRAGConfig())

	_, err := pipeline.Ingest(context.Background(), "movie.mp4", "video/mp4", []byte{0x01}, nil)
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFileType, appErr.Code)
}

func TestPipeline_Delete_PublishesEvent(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())
	pipeline := NewPipeline(store, &fakeEmbedder{}, testRAGConfig())
	events := &recordedEvents{}
	pipeline.WithEvents(events)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "document_chunks"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pipeline.Delete(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, events.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/equipdesk/backend-go/internal/config"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/models"
)

type fakeVectorStore struct {
	matches []SearchMatch
	err     error
	removed []uint
	indexed int
}

func (f *fakeVectorStore) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	f.indexed += len(chunks)
	return nil
}

func (f *fakeVectorStore) RemoveDocument(ctx context.Context, documentID uint) error {
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeVectorStore) Ready() bool { return true }

type fakeFulltextSearcher struct {
	matches  []SearchMatch
	err      error
	lastTerm string
}

func (f *fakeFulltextSearcher) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	return nil
}

func (f *fakeFulltextSearcher) RemoveDocument(ctx context.Context, documentID uint) error {
	return nil
}

func (f *fakeFulltextSearcher) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	f.lastTerm = req.Term
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeFulltextSearcher) Ready() bool { return true }

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func testRAGConfig() config.RAGConfig {
	return config.RAGConfig{
		ChunkSize:       1000,
		ChunkOverlap:    200,
		SearchThreshold: 0.5,
		SearchLimit:     10,
		ContextLimit:    5,
		FallbackTerm:    "техническ",
		FallbackScore:   0.6,
	}
}

func TestStore_SearchSimilarChunks_VectorTier(t *testing.T) {
	vector := &fakeVectorStore{matches: []SearchMatch{
		{ChunkID: 1, Similarity: 0.9, Content: "а"},
		{ChunkID: 2, Similarity: 0.7, Content: "б"},
	}}
	fulltext := &fakeFulltextSearcher{}
	store := NewStore(nil, vector, fulltext, testRAGConfig())

	matches := store.SearchSimilarChunks(context.Background(), []float32{0.1}, 0)
	require.Len(t, matches, 2)
	assert.Equal(t, uint(1), matches[0].ChunkID)
	// 向量检索命中时不走降级检索
	assert.Empty(t, fulltext.lastTerm)
}

func TestStore_SearchSimilarChunks_FallbackTier(t *testing.T) {
	vector := &fakeVectorStore{err: errors.New("pgvector missing")}
	fulltext := &fakeFulltextSearcher{matches: []SearchMatch{
		{ChunkID: 3, Similarity: 0.6, Content: "регламент технического обслуживания"},
	}}
	store := NewStore(nil, vector, fulltext, testRAGConfig())

	matches := store.SearchSimilarChunks(context.Background(), []float32{0.1}, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, uint(3), matches[0].ChunkID)
	assert.InDelta(t, 0.6, matches[0].Similarity, 1e-9)
	assert.Equal(t, "техническ", fulltext.lastTerm)
}

func TestStore_SearchSimilarChunks_EmptyVectorResultFallsBack(t *testing.T) {
	vector := &fakeVectorStore{}
	fulltext := &fakeFulltextSearcher{matches: []SearchMatch{{ChunkID: 5, Similarity: 0.6}}}
	store := NewStore(nil, vector, fulltext, testRAGConfig())

	matches := store.SearchSimilarChunks(context.Background(), []float32{0.1}, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "техническ", fulltext.lastTerm)
}

func TestStore_SearchSimilarChunks_BothTiersFail(t *testing.T) {
	vector := &fakeVectorStore{err: errors.New("vector down")}
	fulltext := &fakeFulltextSearcher{err: errors.New("table missing")}
	store := NewStore(nil, vector, fulltext, testRAGConfig())

	matches := store.SearchSimilarChunks(context.Background(), []float32{0.1}, 0)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestStore_SaveDocumentMetadata_SchemaMissing(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnError(errors.New(`pq: relation "documents" does not exist`))
	mock.ExpectRollback()

	err := store.SaveDocumentMetadata(context.Background(), &models.Document{Filename: "a.txt"})
	require.Error(t, err)
	assert.True(t, apperrors.IsSchemaMissing(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveDocumentMetadata_OK(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	doc := &models.Document{Filename: "a.txt", Content: "текст"}
	err := store.SaveDocumentMetadata(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, uint(42), doc.ID)
	assert.False(t, doc.UploadDate.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListDocuments_MissingTableIsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())

	mock.ExpectQuery(`SELECT (.+) FROM "documents"`).
		WillReturnError(errors.New(`pq: relation "documents" does not exist`))

	docs, err := store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteDocument(t *testing.T) {
	db, mock := newMockDB(t)
	vector := &fakeVectorStore{}
	store := NewStore(db, vector, &fakeFulltextSearcher{}, testRAGConfig())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "document_chunks"`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.DeleteDocument(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []uint{7}, vector.removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CheckDocumentsAvailability(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db, &fakeVectorStore{}, &fakeFulltextSearcher{}, testRAGConfig())

	mock.ExpectQuery(`SELECT count\(\*\) FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "document_chunks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(14))

	assert.True(t, store.CheckDocumentsAvailability(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseVectorStore_Search(t *testing.T) {
	db, mock := newMockDB(t)
	vs := NewDatabaseVectorStore(db)

	rows := sqlmock.NewRows([]string{"id", "document_id", "content", "filename", "metadata", "similarity"}).
		AddRow(1, 2, "инструкция по принтеру", "printer.txt", `{"chunk_index":0}`, 0.83).
		AddRow(4, 2, "регламент замены", "printer.txt", "", 0.61)
	mock.ExpectQuery(`SELECT \* FROM match_documents`).
		WithArgs("[0.5]", 0.5, 10).
		WillReturnRows(rows)

	matches, err := vs.Search(context.Background(), VectorSearchRequest{
		QueryEmbedding: []float32{0.5},
		Threshold:      0.5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, uint(1), matches[0].ChunkID)
	assert.Equal(t, "printer.txt", matches[0].Filename)
	assert.InDelta(t, 0.83, matches[0].Similarity, 1e-9)
	assert.Equal(t, float64(0), matches[0].Metadata["chunk_index"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseFulltextSearcher_Search(t *testing.T) {
	db, mock := newMockDB(t)
	fs := NewDatabaseFulltextSearcher(db, 0.6)

	rows := sqlmock.NewRows([]string{"id", "document_id", "content", "filename"}).
		AddRow(9, 3, "техническое обслуживание", "manual.txt")
	mock.ExpectQuery(`SELECT document_chunks\.id(.+)ILIKE`).
		WillReturnRows(rows)

	matches, err := fs.Search(context.Background(), FulltextSearchRequest{Term: "техническ"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.6, matches[0].Similarity, 1e-9)
	assert.Equal(t, "manual.txt", matches[0].Filename)
	assert.NoError(t, mock.ExpectationsWereMet())
}

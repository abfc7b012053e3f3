package search

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateIndex_SkipsUnchangedContent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	hash := contentHash("Title", "Some content", []string{"go"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"title", "content", "tags"}).
			AddRow("Title", "Some content", "{go}"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT content_hash FROM search_index")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow(hash))

	require.NoError(t, ix.UpdateIndex(context.Background(), "n1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIndex_WritesNewEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	hash := contentHash("Title", "Notes about pooling", []string{"go"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"title", "content", "tags"}).
			AddRow("Title", "Notes about pooling", "{go}"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT content_hash FROM search_index")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE knowledge_nodes")).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO search_index")).
		WithArgs("n1", hash, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, ix.UpdateIndex(context.Background(), "n1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateIndex_NodeMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"title", "content", "tags"}))

	err = ix.UpdateIndex(context.Background(), "gone")
	require.Error(t, err)

	var iue *IndexUpdateError
	require.True(t, errors.As(err, &iue))
	assert.Equal(t, "gone", iue.NodeID)
}

func TestRemoveFromIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM search_index")).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ix.RemoveFromIndex(context.Background(), "n1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM knowledge_nodes")).
		WithArgs("", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	// Both nodes hash-match their existing entries, so no writes happen.
	for _, id := range []string{"a", "b"} {
		hash := contentHash("Title "+id, "Content", nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"title", "content", "tags"}).
				AddRow("Title "+id, "Content", "{}"))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT content_hash FROM search_index")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow(hash))
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM knowledge_nodes")).
		WithArgs("b", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	total, err := ix.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexAll_ReportsFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM knowledge_nodes")).
		WithArgs("", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	hash := contentHash("Title", "Content", nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"title", "content", "tags"}).
			AddRow("Title", "Content", "{}"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT content_hash FROM search_index")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow(hash))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT title, content, tags FROM knowledge_nodes")).
		WithArgs("b").
		WillReturnError(errors.New("deadlock detected"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM knowledge_nodes")).
		WithArgs("b", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	total, err := ix.ReindexAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 failed")
	assert.Equal(t, 1, total)
}

func TestIndexerStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	indexedAt := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM search_index")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "indexed", "last"}).
			AddRow(10, 8, indexedAt))

	status, err := ix.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, status.TotalDocuments)
	assert.Equal(t, 8, status.IndexedDocuments)
	assert.Equal(t, 2, status.PendingDocuments)
	assert.InDelta(t, 0.8, status.Health, 1e-9)
	require.NotNil(t, status.LastIndexedAt)
	assert.Equal(t, indexedAt, *status.LastIndexedAt)
}

func TestIndexerStatus_EmptyCorpus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ix := NewIndexer(db, testSettings(), testLogger(), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM search_index")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "indexed", "last"}).
			AddRow(0, 0, nil))

	status, err := ix.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, status.PendingDocuments)
	assert.InDelta(t, 1.0, status.Health, 1e-9)
	assert.Nil(t, status.LastIndexedAt)
}

func TestContentHash(t *testing.T) {
	base := contentHash("title", "content", []string{"a", "b"})

	assert.Equal(t, base, contentHash("title", "content", []string{"a", "b"}))
	assert.NotEqual(t, base, contentHash("title", "content", []string{"ab"}))
	assert.NotEqual(t, base, contentHash("titlec", "ontent", []string{"a", "b"}))
	assert.NotEqual(t, base, contentHash("title", "content", nil))
}

func TestExtractKeywords(t *testing.T) {
	text := "The cache keeps keys. Keys expire; keys rotate. Cache wins!"
	keywords := extractKeywords(text, 2)
	assert.Equal(t, []string{"keys", "cache"}, keywords)

	// Ties break alphabetically.
	keywords = extractKeywords("zebra apple zebra apple", 5)
	assert.Equal(t, []string{"apple", "zebra"}, keywords)

	// Stopwords and short words never surface.
	keywords = extractKeywords("the of to it is ok", 5)
	assert.Empty(t, keywords)
}

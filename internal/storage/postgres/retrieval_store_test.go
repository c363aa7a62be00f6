package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagecrawl/internal/ledger"
)

func TestStoreRetrievalInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "retrievals")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := ledger.Record{
		ID:          "uuid-v7",
		SessionID:   "session-1",
		Site:        "wear",
		Kind:        ledger.KindPage,
		URL:         "https://wear.jp/user/?pageno=1",
		FinalURL:    "https://wear.jp/user/?pageno=1",
		StatusCode:  200,
		Bytes:       1234,
		Location:    "cache-key.html",
		RetrievedAt: now,
		Duration:    1500 * time.Millisecond,
	}

	mock.ExpectExec("INSERT INTO retrievals").
		WithArgs(
			rec.ID,
			rec.SessionID,
			rec.Site,
			"page",
			rec.URL,
			rec.FinalURL,
			rec.StatusCode,
			rec.Bytes,
			rec.Location,
			rec.RetrievedAt,
			int64(1500),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreRetrieval(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRetrievalPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "retrievals", store.table)

	mock.ExpectExec("INSERT INTO retrievals").WillReturnError(errors.New("db down"))
	err = store.StoreRetrieval(context.Background(), ledger.Record{ID: "x"})
	require.ErrorContains(t, err, "db down")

	require.Error(t, store.StoreRetrieval(context.Background(), ledger.Record{}))
}

func TestNewRetrievalStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRetrievalStoreWithPool(nil, "retrievals")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRetrievalStoreWithPool(mock, "bad;table")
	require.Error(t, err)

	_, err = NewRetrievalStore(context.Background(), RetrievalStoreConfig{})
	require.Error(t, err)

	var nilStore *RetrievalStore
	nilStore.Close()
	require.Error(t, nilStore.StoreRetrieval(context.Background(), ledger.Record{ID: "x"}))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRetrievalStoreWithPool(mock, "crawl_log")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_log").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_log").
		WillReturnError(errors.New("permission denied"))
	require.ErrorContains(t, store.EnsureSchema(context.Background()), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

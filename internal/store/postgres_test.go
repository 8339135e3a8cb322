package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
)

func mockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := mockStore(t)
	run := sampleRun("run-1")

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.RunID, string(run.Status), pgxmock.AnyArg(), run.StartedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRunNotFound(t *testing.T) {
	s, mock := mockStore(t)
	run := sampleRun("run-ghost")
	completed := run.StartedAt.Add(time.Minute)
	run.Status = model.RunComplete
	run.CompletedAt = &completed

	mock.ExpectExec("UPDATE runs SET").
		WithArgs(string(run.Status), pgxmock.AnyArg(), run.CompletedAt, run.RunID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := mockStore(t)
	run := sampleRun("run-1")
	logJSON, err := json.Marshal(run)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT log FROM runs").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"log"}).AddRow(logJSON))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRunNotFound(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT log FROM runs").
		WithArgs("absent").
		WillReturnRows(pgxmock.NewRows([]string{"log"}))

	_, err := s.GetRun(context.Background(), "absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestPostgres_LastColumnSetNeverSeen(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT columns FROM schema_maps").
		WithArgs("adserver:/data/jan.csv").
		WillReturnRows(pgxmock.NewRows([]string{"columns"}))

	cols, err := s.LastColumnSet(context.Background(), "adserver:/data/jan.csv")
	require.NoError(t, err)
	assert.Nil(t, cols)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LastColumnSet(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT columns FROM schema_maps").
		WithArgs("adserver:/data/jan.csv").
		WillReturnRows(pgxmock.NewRows([]string{"columns"}).
			AddRow([]byte(`["Date","Impressions"]`)))

	cols, err := s.LastColumnSet(context.Background(), "adserver:/data/jan.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Impressions"}, cols)
}

func TestPostgres_SaveRowsEmpty(t *testing.T) {
	s, mock := mockStore(t)
	n, err := s.SaveRows(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ResolveReviewAlreadyTerminal(t *testing.T) {
	s, mock := mockStore(t)
	item := sampleItem("rev-1", "run-1")
	item.Status = model.ReviewApproved
	itemJSON, err := json.Marshal(item)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT item FROM review_items").
		WithArgs("rev-1").
		WillReturnRows(pgxmock.NewRows([]string{"item"}).AddRow(itemJSON))

	_, err = s.ResolveReview(context.Background(), "rev-1", model.ActionReject, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already approved")
}

func TestPostgres_ListReviewItemsFilter(t *testing.T) {
	s, mock := mockStore(t)
	item := sampleItem("rev-1", "run-1")
	itemJSON, err := json.Marshal(item)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT item FROM review_items").
		WithArgs("run-1", string(model.ReviewPending), 100).
		WillReturnRows(pgxmock.NewRows([]string{"item"}).AddRow(itemJSON))

	items, err := s.ListReviewItems(context.Background(), ReviewFilter{
		RunID:  "run-1",
		Status: model.ReviewPending,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rev-1", items[0].ReviewID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

var pgColumns = []string{"id", "name", "kind", "provider", "capabilities", "status", "performance", "costs"}

func TestPGStoreListOrdersByPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(pgColumns).
		AddRow("a", "A", "llm", "local", []byte(`["reasoning"]`), "available",
			[]byte(`{"accuracy":0.9,"latencyMs":100,"quality":0.8}`), []byte(`{"computeCostPerHour":2}`)).
		AddRow("b", "B", "llm", "openai", []byte(`[]`), "unavailable",
			[]byte(`{"accuracy":0.7,"latencyMs":50,"quality":0.6}`), []byte(`{"inputTokenCost":0.001}`))
	mock.ExpectQuery("SELECT .* FROM resource_catalog ORDER BY position").WillReturnRows(rows)

	list, err := NewPGStore(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, []string{"reasoning"}, list[0].Capabilities)
	assert.InDelta(t, 0.8, list[0].Performance.Quality, 1e-9)
	assert.True(t, list[0].Costs.ComputePriced())
	assert.Equal(t, models.StatusUnavailable, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM resource_catalog WHERE id").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err = NewPGStore(db).Get(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := descriptor("a", "code")
	mock.ExpectQuery("INSERT INTO resource_catalog").
		WithArgs("a", "A", "llm", "openai", sqlmock.AnyArg(), "available", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(pgColumns).AddRow("a", "A", "llm", "openai", []byte(`["code"]`), "available",
			[]byte(`{"accuracy":0.9,"latencyMs":200,"quality":0.9}`), []byte(`{"inputTokenCost":0.001}`)))

	out, err := NewPGStore(db).Upsert(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, d, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreUpsertRejectsInvalidWithoutQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	bad := descriptor("")
	_, err = NewPGStore(db).Upsert(context.Background(), bad)
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreSetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("UPDATE resource_catalog SET status").
		WithArgs("a", "unavailable").
		WillReturnRows(sqlmock.NewRows(pgColumns).AddRow("a", "A", "llm", "openai", []byte(`[]`), "unavailable",
			[]byte(`{"accuracy":0.9,"latencyMs":200,"quality":0.9}`), []byte(`{}`)))
	mock.ExpectQuery("UPDATE resource_catalog SET status").
		WithArgs("ghost", "available").
		WillReturnError(sql.ErrNoRows)

	store := NewPGStore(db)
	d, err := store.SetStatus(context.Background(), "a", models.StatusUnavailable)
	require.NoError(t, err)
	assert.False(t, d.Available())

	_, err = store.SetStatus(context.Background(), "ghost", models.StatusAvailable)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

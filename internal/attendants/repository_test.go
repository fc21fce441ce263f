package attendants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "first_name", "last_name", "created_at"}

func TestPostgresRepositoryFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	mock.ExpectQuery("ORDER BY created_at, id LIMIT 1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, "Bea", "Santos", time.Now()))

	a, err := repo.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	assert.Equal(t, "Bea Santos", a.FullName())

	mock.ExpectQuery("ORDER BY created_at, id LIMIT 1").WillReturnError(pgx.ErrNoRows)
	_, err = repo.First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGetAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	mock.ExpectQuery("WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(id, "Carla", "Diaz", time.Now()))
	a, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Carla", a.FirstName)

	mock.ExpectQuery("FROM attendants").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New(), "Bea", "Santos", time.Now()).
			AddRow(uuid.New(), "Carla", "Diaz", time.Now()))
	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInMemoryRepositoryOrder(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	first := repo.Add(Attendant{FirstName: "Bea", LastName: "Santos"})
	repo.Add(Attendant{FirstName: "Carla", LastName: "Diaz"})

	got, err := repo.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	byName, err := repo.FindByName(context.Background(), "Carla", "Diaz")
	require.NoError(t, err)
	assert.Equal(t, "Carla", byName.FirstName)
}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	created := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO attendants").
		WithArgs(pgxmock.AnyArg(), "Bea", "Santos").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	a, err := repo.Create(context.Background(), " Bea ", "Santos")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, created, a.CreatedAt)

	_, err = repo.Create(context.Background(), "Bea", "  ")
	assert.ErrorIs(t, err, ErrNameRequired)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM attendants").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.Delete(context.Background(), id))

	mock.ExpectExec("DELETE FROM attendants").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrNotFound)

	mock.ExpectExec("DELETE FROM attendants").WithArgs(id).WillReturnError(&pgconn.PgError{Code: "23503"})
	assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrInUse)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInMemoryRepositoryCreateAndDelete(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	a, err := repo.Create(ctx, "Carla", "Diaz")
	require.NoError(t, err)
	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)
	_, err = repo.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

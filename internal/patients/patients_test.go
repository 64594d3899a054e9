package patients

import (
	"context"
	"sync"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/pkg/apperrors"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511999990000", NormalizePhone("+55 (11) 99999-0000"))
	assert.Equal(t, "", NormalizePhone("whatsapp"))
}

func TestPostgresFindByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT id, clinic_id, phone, name, created_at").
		WithArgs("clinic-1", "5511999990000").
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "phone", "name", "created_at"}).
			AddRow("p-1", "clinic-1", "5511999990000", "Ana", created))
	p, err := repo.FindByPhone(context.Background(), "clinic-1", "+55 11 99999-0000")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "Ana", p.Name)

	mock.ExpectQuery("SELECT id, clinic_id, phone, name, created_at").
		WithArgs("clinic-1", "123").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.FindByPhone(context.Background(), "clinic-1", "123")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetOrCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "clinic-1", "5511999990000").
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "phone", "name", "created_at"}).
			AddRow("p-1", "clinic-1", "5511999990000", "", time.Now()))

	p, err := repo.GetOrCreate(context.Background(), "clinic-1", "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationBeforeQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	_, err = repo.GetOrCreate(context.Background(), "", "123")
	assert.True(t, apperrors.IsValidation(err))
	_, err = repo.GetOrCreate(context.Background(), "clinic-1", "n/a")
	assert.True(t, apperrors.IsValidation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryGetOrCreateConverges(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.FindByPhone(ctx, "clinic-1", "123")
	assert.True(t, apperrors.IsNotFound(err))

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.GetOrCreate(ctx, "clinic-1", "+1 (23)")
			if err == nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	found, err := repo.FindByPhone(ctx, "clinic-1", "123")
	require.NoError(t, err)
	assert.Equal(t, ids[0], found.ID)
}

package church

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/database/dbtest"
)

var churchColumns = []string{"id", "name", "registration_number", "status", "setup_token_hash", "setup_token_expires_at"}

func TestGetChurchNotFound(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "churches" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(churchColumns))

	_, err := repo.GetChurch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateChurchDuplicate(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "churches"`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateChurch(context.Background(), &Church{Name: "Grace", RegistrationNumber: "NPO-1", AdminEmail: "a@b.org"})
	assert.ErrorIs(t, err, ErrDuplicateChurch)
}

func TestUpdateChurchStatusGuardsOnCurrentStatus(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewRepository(db)
	c := &Church{ID: uuid.New(), Status: StatusApproved}

	mock.ExpectExec(`UPDATE "churches" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateChurchStatus(context.Background(), c, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateChurchStatusWrapsDriverErrors(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewRepository(db)

	mock.ExpectExec(`UPDATE "churches" SET`).
		WillReturnError(errors.New("connection reset by peer"))

	err := repo.UpdateChurchStatus(context.Background(), &Church{ID: uuid.New(), Status: StatusApproved}, StatusPending)
	assert.ErrorIs(t, err, database.ErrPersistence)
}

func TestClaimSetupToken(t *testing.T) {
	id := uuid.New()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("live token is cleared", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := NewRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "churches" WHERE setup_token_hash = \$1 .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(churchColumns).
				AddRow(id.String(), "Grace", "NPO-1", "approved", "hash", now.Add(time.Hour)))
		mock.ExpectExec(`UPDATE "churches" SET .* WHERE id = \$\d+ AND setup_token_hash = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		c, err := repo.ClaimSetupToken(context.Background(), "hash", now)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID)
		assert.Nil(t, c.SetupTokenHash)
		assert.Nil(t, c.SetupTokenExpiresAt)
	})

	t.Run("expired token is refused", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := NewRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "churches" WHERE setup_token_hash = \$1`).
			WillReturnRows(sqlmock.NewRows(churchColumns).
				AddRow(id.String(), "Grace", "NPO-1", "approved", "hash", now.Add(-time.Minute)))

		_, err := repo.ClaimSetupToken(context.Background(), "hash", now)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("token claimed concurrently", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := NewRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "churches" WHERE setup_token_hash = \$1`).
			WillReturnRows(sqlmock.NewRows(churchColumns).
				AddRow(id.String(), "Grace", "NPO-1", "approved", "hash", now.Add(time.Hour)))
		mock.ExpectExec(`UPDATE "churches" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := repo.ClaimSetupToken(context.Background(), "hash", now)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := NewRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "churches" WHERE setup_token_hash = \$1`).
			WillReturnRows(sqlmock.NewRows(churchColumns))

		_, err := repo.ClaimSetupToken(context.Background(), "nope", now)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})
}

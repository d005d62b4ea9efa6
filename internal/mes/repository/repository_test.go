package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, repository.IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, repository.IsUniqueViolation(fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, repository.IsUniqueViolation(errors.New("UNIQUE constraint failed: mes_time_logs.subject_id")))

	assert.False(t, repository.IsUniqueViolation(nil))
	assert.False(t, repository.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, repository.IsUniqueViolation(gorm.ErrRecordNotFound))
}

func openLog(subjectID string) *entity.TimeLog {
	return &entity.TimeLog{
		ID:          uuid.NewString(),
		SubjectType: entity.SubjectOrder,
		SubjectID:   subjectID,
		Phase:       entity.PhaseDesign,
		OperatorID:  "op-001",
		StartedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

// Runs against whichever database SetupTestDB selects, so MES_TEST_DB=postgres covers SQLSTATE 23505.
func TestTimeLog_SecondOpenIntervalKeepsTransactionUsable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	subject := uuid.NewString()

	err := db.Transaction(func(tx *gorm.DB) error {
		r := repository.NewRepositories(tx)
		require.NoError(t, r.TimeLog.CreateOpen(ctx, openLog(subject)))

		err := r.TimeLog.CreateOpen(ctx, openLog(subject))
		require.Error(t, err)
		assert.True(t, repository.IsUniqueViolation(err), "got %v", err)

		// the failed insert rolled back to its savepoint only
		open, err := r.TimeLog.FindOpen(ctx, entity.SubjectOrder, subject, entity.PhaseDesign)
		require.NoError(t, err)
		assert.Equal(t, "op-001", open.OperatorID)
		return nil
	})
	require.NoError(t, err)

	var n int64
	db.Model(&entity.TimeLog{}).Where("subject_id = ?", subject).Count(&n)
	assert.Equal(t, int64(1), n)

	// a closed interval frees the slot
	r := repository.NewRepositories(db)
	open, err := r.TimeLog.FindOpen(ctx, entity.SubjectOrder, subject, entity.PhaseDesign)
	require.NoError(t, err)
	closed, err := r.TimeLog.Close(ctx, open.ID, open.StartedAt.Add(time.Hour), 60)
	require.NoError(t, err)
	assert.True(t, closed)
	require.NoError(t, r.TimeLog.CreateOpen(ctx, openLog(subject)))
}

package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Repositories groups every MES repository over one connection or transaction.
type Repositories struct {
	db *gorm.DB

	Order      *OrderRepository
	Design     *DesignRepository
	Task       *TaskRepository
	Batch      *BatchRepository
	Material   *MaterialRepository
	WorkCenter *WorkCenterRepository
	Product    *ProductRepository
	TimeLog    *TimeLogRepository
	Settings   *SettingsRepository
	Audit      *AuditRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		Order:      NewOrderRepository(db),
		Design:     NewDesignRepository(db),
		Task:       NewTaskRepository(db),
		Batch:      NewBatchRepository(db),
		Material:   NewMaterialRepository(db),
		WorkCenter: NewWorkCenterRepository(db),
		Product:    NewProductRepository(db),
		TimeLog:    NewTimeLogRepository(db),
		Settings:   NewSettingsRepository(db),
		Audit:      NewAuditRepository(db),
	}
}

// WithTx returns the repositories bound to tx.
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}

// DB returns the underlying connection for transactions.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// IsUniqueViolation reports whether err comes from a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

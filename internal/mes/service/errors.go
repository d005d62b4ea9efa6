package service

import (
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// Failure kinds returned by every service. Callers match them with errors.Is.
var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrConflictAlreadyApplied = errors.New("already applied")
	ErrValidationFailed       = errors.New("validation failed")
	ErrNotFound               = repository.ErrNotFound
)

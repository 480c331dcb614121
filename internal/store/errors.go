package store

import (
	"errors"

	"carecrm/backend/internal/domain"
)

var (
	ErrConflict            = domain.ErrConflict
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// Package store provides model persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/botkit/internal/domain"
)

// Repository persists trained models.
//
// Models are addressed by (modelID, passwordHash). A lookup with the wrong
// password hash behaves exactly like a missing model.
type Repository interface {
	// SaveModel creates or replaces a model.
	SaveModel(ctx context.Context, model *domain.Model) error

	// GetModel returns the model, or nil, nil when it does not exist.
	GetModel(ctx context.Context, modelID, passwordHash string) (*domain.Model, error)

	// ListModels returns the models stored under passwordHash, without their data.
	ListModels(ctx context.Context, passwordHash string) ([]*domain.Model, error)

	// DeleteModel removes a model and reports whether it existed.
	DeleteModel(ctx context.Context, modelID, passwordHash string) (bool, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

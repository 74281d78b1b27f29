package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashureev/botkit/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Repository using Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres applies pending migrations and opens a connection pool.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	if err := RunMigrations(databaseURL, sub); err != nil {
		return nil, err
	}

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies every pending migration found in migrations.
func RunMigrations(databaseURL string, migrations fs.FS) error {
	d, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("Migrations applied", "version", version, "dirty", dirty)
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveModel creates or replaces a model.
func (s *PostgresStore) SaveModel(ctx context.Context, model *domain.Model) error {
	query := `
	INSERT INTO models (model_id, password_hash, language, seed, engine_version, data, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (model_id, password_hash) DO UPDATE SET
		language = EXCLUDED.language,
		seed = EXCLUDED.seed,
		engine_version = EXCLUDED.engine_version,
		data = EXCLUDED.data,
		created_at = EXCLUDED.created_at`

	_, err := s.pool.Exec(ctx, query,
		model.ModelID, model.PasswordHash, model.Language, model.Seed,
		model.EngineVersion, model.Data, model.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save model %s: %w", model.ModelID, err)
	}
	return nil
}

// GetModel retrieves a model by id and password hash.
func (s *PostgresStore) GetModel(ctx context.Context, modelID, passwordHash string) (*domain.Model, error) {
	query := `
		SELECT model_id, password_hash, language, seed, engine_version, data, created_at
		FROM models WHERE model_id = $1 AND password_hash = $2`

	var model domain.Model
	err := s.pool.QueryRow(ctx, query, modelID, passwordHash).Scan(
		&model.ModelID, &model.PasswordHash, &model.Language, &model.Seed,
		&model.EngineVersion, &model.Data, &model.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return &model, nil
}

// ListModels returns the models stored under passwordHash, newest first.
func (s *PostgresStore) ListModels(ctx context.Context, passwordHash string) ([]*domain.Model, error) {
	query := `
		SELECT model_id, language, seed, engine_version, created_at
		FROM models WHERE password_hash = $1 ORDER BY created_at DESC, model_id`

	rows, err := s.pool.Query(ctx, query, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	models := []*domain.Model{}
	for rows.Next() {
		model := &domain.Model{PasswordHash: passwordHash}
		if err := rows.Scan(&model.ModelID, &model.Language, &model.Seed, &model.EngineVersion, &model.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// DeleteModel removes a model.
func (s *PostgresStore) DeleteModel(ctx context.Context, modelID, passwordHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM models WHERE model_id = $1 AND password_hash = $2`, modelID, passwordHash)
	if err != nil {
		return false, fmt.Errorf("delete model %s: %w", modelID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS models (
		model_id TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0,
		engine_version TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (model_id, password_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_models_password ON models(password_hash, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveModel creates or replaces a model.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) SaveModel(ctx context.Context, model *domain.Model) error {
	query := `
	INSERT INTO models (model_id, password_hash, language, seed, engine_version, data, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(model_id, password_hash) DO UPDATE SET
		language = excluded.language,
		seed = excluded.seed,
		engine_version = excluded.engine_version,
		data = excluded.data,
		created_at = excluded.created_at`

	err := shared.RetryOnConflict(ctx, s.retry, "save_model", func() error {
		_, err := s.db.ExecContext(ctx, query,
			model.ModelID, model.PasswordHash, model.Language, model.Seed,
			model.EngineVersion, model.Data, model.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save model %s: %w", model.ModelID, err)
	}
	return nil
}

// GetModel retrieves a model by id and password hash.
func (s *SQLiteStore) GetModel(ctx context.Context, modelID, passwordHash string) (*domain.Model, error) {
	query := `
		SELECT model_id, password_hash, language, seed, engine_version, data, created_at
		FROM models WHERE model_id = ? AND password_hash = ?`

	var model domain.Model
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, modelID, passwordHash).Scan(
		&model.ModelID, &model.PasswordHash, &model.Language, &model.Seed,
		&model.EngineVersion, &model.Data, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan model row: %w", err)
	}

	model.CreatedAt = time.Unix(createdAt, 0)
	return &model, nil
}

// ListModels returns the models stored under passwordHash, newest first.
func (s *SQLiteStore) ListModels(ctx context.Context, passwordHash string) ([]*domain.Model, error) {
	query := `
		SELECT model_id, language, seed, engine_version, created_at
		FROM models WHERE password_hash = ? ORDER BY created_at DESC, model_id`

	rows, err := s.db.QueryContext(ctx, query, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close model rows", "error", closeErr)
		}
	}()

	models := []*domain.Model{}
	for rows.Next() {
		model := &domain.Model{PasswordHash: passwordHash}
		var createdAt int64
		if err := rows.Scan(&model.ModelID, &model.Language, &model.Seed, &model.EngineVersion, &createdAt); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		model.CreatedAt = time.Unix(createdAt, 0)
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// DeleteModel removes a model.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) DeleteModel(ctx context.Context, modelID, passwordHash string) (bool, error) {
	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "delete_model", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE model_id = ? AND password_hash = ?`, modelID, passwordHash)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete model %s: %w", modelID, err)
	}
	return rows > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

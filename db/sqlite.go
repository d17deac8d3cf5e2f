package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"laborcond/inference"
)

var ErrNotInitialized = errors.New("database not initialized")

// Store is the prediction log. It keeps which model answered and what it
// answered, never the attributes a user entered.
type Store struct {
	database *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the schema.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        event_id TEXT NOT NULL,
        kind VARCHAR(20) NOT NULL,
        model_key TEXT NOT NULL,
        artifact TEXT NOT NULL DEFAULT '',
        predicted_label INTEGER DEFAULT 0,
        probability REAL DEFAULT 0,
        with_disability REAL DEFAULT 0,
        without_disability REAL DEFAULT 0,
        elapsed_ms REAL DEFAULT 0,
        error TEXT DEFAULT '',
        created_at DATETIME NOT NULL,
        UNIQUE(event_id)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_artifact ON predictions(artifact, created_at);
    CREATE TABLE IF NOT EXISTS evaluation_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(100),
        accuracy REAL,
        precision REAL,
        recall REAL,
        evaluated_at DATETIME,
        data_points INTEGER
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

// Prediction is one logged inference.
type Prediction struct {
	EventID           string    `json:"event_id"`
	Kind              string    `json:"kind"`
	Key               string    `json:"key"`
	Artifact          string    `json:"artifact"`
	Label             int       `json:"label"`
	Probability       float64   `json:"probability"`
	WithDisability    float64   `json:"with_disability"`
	WithoutDisability float64   `json:"without_disability"`
	ElapsedMS         float64   `json:"elapsed_ms"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Record implements inference.Recorder.
func (s *Store) Record(ctx context.Context, e inference.Event) error {
	if s == nil || s.database == nil {
		return ErrNotInitialized
	}
	if e.ID == "" {
		return errors.New("event id required")
	}

	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	_, err := s.database.ExecContext(ctx, `
        INSERT OR REPLACE INTO predictions (
            event_id, kind, model_key, artifact, predicted_label, probability,
            with_disability, without_disability, elapsed_ms, error, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		e.ID,
		e.Kind,
		e.Key,
		e.Artifact,
		e.Label,
		e.Probability,
		e.WithDisability,
		e.WithoutDisability,
		float64(e.Elapsed)/float64(time.Millisecond),
		errText,
		e.At.UTC(),
	)
	return err
}

// RecentPredictions returns the latest entries, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	if s == nil || s.database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT event_id, kind, model_key, artifact, predicted_label, probability,
               with_disability, without_disability, elapsed_ms, error, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.EventID, &p.Kind, &p.Key, &p.Artifact, &p.Label, &p.Probability,
			&p.WithDisability, &p.WithoutDisability, &p.ElapsedMS, &p.Error, &p.CreatedAt); err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// UsageByArtifact counts successful predictions per artifact since the given time.
func (s *Store) UsageByArtifact(ctx context.Context, since time.Time) (map[string]int, error) {
	if s == nil || s.database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT artifact, COUNT(*)
        FROM predictions
        WHERE error = '' AND created_at >= ?
        GROUP BY artifact`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var artifact string
		var count int
		if err := rows.Scan(&artifact, &count); err != nil {
			return nil, err
		}
		usage[artifact] = count
	}
	return usage, rows.Err()
}

// EvaluationLog is one row of the evaluation_log table.
type EvaluationLog struct {
	ModelName   string    `json:"model_name"`
	Accuracy    float64   `json:"accuracy"`
	Precision   float64   `json:"precision"`
	Recall      float64   `json:"recall"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	DataPoints  int       `json:"data_points"`
}

// SaveEvaluation appends one offline evaluation result.
func (s *Store) SaveEvaluation(ctx context.Context, log EvaluationLog) error {
	if s == nil || s.database == nil {
		return ErrNotInitialized
	}
	if log.ModelName == "" {
		return errors.New("model name required")
	}
	_, err := s.database.ExecContext(ctx, `
        INSERT INTO evaluation_log (model_name, accuracy, precision, recall, evaluated_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Accuracy, log.Precision, log.Recall, log.EvaluatedAt.UTC(), log.DataPoints)
	return err
}

// LoadEvaluationLog returns every stored evaluation, newest first.
func (s *Store) LoadEvaluationLog(ctx context.Context) ([]EvaluationLog, error) {
	if s == nil || s.database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, evaluated_at, data_points
        FROM evaluation_log
        ORDER BY evaluated_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]EvaluationLog, 0)
	for rows.Next() {
		var log EvaluationLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.EvaluatedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

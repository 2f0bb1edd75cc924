package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"easel/internal/config"
)

// Store manages work item persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewItem describes a work item to enqueue.
type NewItem struct {
	Type          string
	Priority      int
	Payload       string
	CorrelationID string
	Owner         string
	MaxAttempts   int
}

// Enqueue inserts a new pending work item.
func (s *Store) Enqueue(ctx context.Context, req NewItem) (*Item, error) {
	taskType := strings.TrimSpace(req.Type)
	if taskType == "" {
		return nil, errors.New("task type is required")
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO work_items (
            task_type, status, priority, payload, correlation_id, owner,
            attempts, max_attempts, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		taskType,
		StatusPending,
		req.Priority,
		nullableString(req.Payload),
		nullableString(req.CorrelationID),
		nullableString(req.Owner),
		maxAttempts,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a work item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// ListPending returns pending items in dispatch order: priority descending,
// then creation time ascending.
func (s *Store) ListPending(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE status = ? ORDER BY priority DESC, created_at, id`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// PendingByCorrelation returns pending items carrying the given correlation id.
func (s *Store) PendingByCorrelation(ctx context.Context, correlationID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE status = ? AND correlation_id = ? ORDER BY created_at, id`,
		StatusPending,
		correlationID,
	)
	if err != nil {
		return nil, fmt.Errorf("pending by correlation: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// List returns work items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM work_items`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// MarkProcessing transitions a pending item to processing and increments its
// attempt count. Returns false when the item was no longer pending.
func (s *Store) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET status = ?, attempts = attempts + 1, started_at = ?, error_message = NULL
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkTerminal records the terminal status and error message for an item.
func (s *Store) MarkTerminal(ctx context.Context, id int64, status Status, errorMessage string) error {
	if !IsTerminal(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark terminal: %w", err)
	}
	return nil
}

// Cancel transitions a pending item to cancelled. Returns false (without
// error) when the item was already dispatched or terminal.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkInterrupted sweeps items left pending or processing by an unclean
// shutdown to failed. Called once during startup recovery, before dispatch.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET status = ?, error_message = ?, completed_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed,
		InterruptedReason,
		now,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed items from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

const itemColumns = "id, task_type, status, priority, payload, correlation_id, owner, error_message, attempts, max_attempts, created_at, started_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		taskType      string
		statusStr     string
		priority      int
		payload       sql.NullString
		correlationID sql.NullString
		owner         sql.NullString
		errorMessage  sql.NullString
		attempts      int
		maxAttempts   int
		createdRaw    sql.NullString
		startedRaw    sql.NullString
		completedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&taskType,
		&statusStr,
		&priority,
		&payload,
		&correlationID,
		&owner,
		&errorMessage,
		&attempts,
		&maxAttempts,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		Type:          taskType,
		Status:        Status(statusStr),
		Priority:      priority,
		Payload:       payload.String,
		CorrelationID: correlationID.String,
		Owner:         owner.String,
		ErrorMessage:  errorMessage.String,
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"easel/internal/config"
)

// Store manages generation and media persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "library.db")
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

// CreateGeneration persists a pending generation record. A missing ID is
// assigned a fresh UUID; Seq and CreatedAt are filled in on return.
func (s *Store) CreateGeneration(ctx context.Context, gen *Generation) error {
	if gen == nil {
		return errors.New("generation is nil")
	}
	if strings.TrimSpace(gen.EndpointKey) == "" {
		return errors.New("endpoint key is required")
	}
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.Status == "" {
		gen.Status = GenerationPending
	}
	gen.CreatedAt = time.Now().UTC()

	outputs, err := marshalPaths(gen.OutputPaths)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO generations (
            id, endpoint_key, provider_id, model_id, prompt, width, height,
            seed, steps, guidance, sampler, params_json, status, error_message,
            elapsed_ms, prompt_cache_hit, ref_cache_hit, output_paths_json,
            created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gen.ID,
		gen.EndpointKey,
		gen.ProviderID,
		gen.ModelID,
		gen.Prompt,
		gen.Width,
		gen.Height,
		gen.Seed,
		gen.Steps,
		gen.Guidance,
		gen.Sampler,
		nullableString(gen.ParamsJSON),
		string(gen.Status),
		nullableString(gen.Error),
		gen.ElapsedMS,
		boolToInt(gen.PromptCacheHit),
		boolToInt(gen.RefCacheHit),
		outputs,
		gen.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	gen.Seq = seq
	return nil
}

// GetGeneration fetches a generation by identifier.
func (s *Store) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+generationColumns+" FROM generations WHERE id = ?",
		id,
	)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return gen, err
}

// ListGenerations returns the most recent generations, newest first. A
// non-positive limit returns everything.
func (s *Store) ListGenerations(ctx context.Context, limit int) ([]*Generation, error) {
	query := "SELECT " + generationColumns + " FROM generations ORDER BY seq DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()
	return collectGenerations(rows)
}

// ListGenerationsByStatus returns generations in the given status, newest first.
func (s *Store) ListGenerationsByStatus(ctx context.Context, status GenerationStatus) ([]*Generation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+generationColumns+" FROM generations WHERE status = ? ORDER BY seq DESC",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query generations by status: %w", err)
	}
	defer rows.Close()
	return collectGenerations(rows)
}

// MarkGenerationCompleted records a successful outcome with its metrics.
func (s *Store) MarkGenerationCompleted(ctx context.Context, id string, metrics CompletionMetrics) error {
	outputs, err := marshalPaths(metrics.OutputPaths)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE generations
           SET status = ?, error_message = NULL, elapsed_ms = ?,
               prompt_cache_hit = ?, ref_cache_hit = ?, output_paths_json = ?,
               completed_at = ?
         WHERE id = ?`,
		string(GenerationCompleted),
		metrics.ElapsedMS,
		boolToInt(metrics.PromptCacheHit),
		boolToInt(metrics.RefCacheHit),
		outputs,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark generation completed: %w", err)
	}
	return requireRow(res, id)
}

// MarkGenerationFailed records a failure outcome with its message.
func (s *Store) MarkGenerationFailed(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "generation failed"
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE generations
           SET status = ?, error_message = ?, completed_at = ?
         WHERE id = ?`,
		string(GenerationFailed),
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}
	return requireRow(res, id)
}

// AddInputs persists reference inputs for a generation in slice order.
func (s *Store) AddInputs(ctx context.Context, generationID string, inputs []GenerationInput) error {
	if len(inputs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inputs tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for position, input := range inputs {
		var mediaID any
		if input.MediaID != nil {
			mediaID = *input.MediaID
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO generation_inputs (
                generation_id, media_id, position, source_type, source_path,
                thumbnail_path, ref_cache_path, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			generationID,
			mediaID,
			position,
			string(input.SourceType),
			input.SourcePath,
			nullableString(input.ThumbnailPath),
			nullableString(input.RefCachePath),
			timestamp,
		); err != nil {
			return fmt.Errorf("insert generation input %d: %w", position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit inputs: %w", err)
	}
	return nil
}

// InputsForGeneration returns a generation's inputs ordered by position.
func (s *Store) InputsForGeneration(ctx context.Context, generationID string) ([]*GenerationInput, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, generation_id, media_id, position, source_type, source_path,
                thumbnail_path, ref_cache_path, created_at
           FROM generation_inputs
          WHERE generation_id = ?
          ORDER BY position`,
		generationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query generation inputs: %w", err)
	}
	defer rows.Close()

	var inputs []*GenerationInput
	for rows.Next() {
		var (
			input         GenerationInput
			mediaID       sql.NullInt64
			thumbnailPath sql.NullString
			refCachePath  sql.NullString
			createdAt     string
		)
		if err := rows.Scan(
			&input.ID,
			&input.GenerationID,
			&mediaID,
			&input.Position,
			(*string)(&input.SourceType),
			&input.SourcePath,
			&thumbnailPath,
			&refCachePath,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation input: %w", err)
		}
		if mediaID.Valid {
			id := mediaID.Int64
			input.MediaID = &id
		}
		input.ThumbnailPath = thumbnailPath.String
		input.RefCachePath = refCachePath.String
		if input.CreatedAt, err = parseTimeString(createdAt); err != nil {
			return nil, err
		}
		inputs = append(inputs, &input)
	}
	return inputs, rows.Err()
}

// SetInputArtifacts records the staged thumbnail and reference cache paths
// produced for an input.
func (s *Store) SetInputArtifacts(ctx context.Context, inputID int64, thumbnailPath, refCachePath string) error {
	_, err := s.db.ExecContext(
		ctx,
		"UPDATE generation_inputs SET thumbnail_path = ?, ref_cache_path = ? WHERE id = ?",
		nullableString(thumbnailPath),
		nullableString(refCachePath),
		inputID,
	)
	if err != nil {
		return fmt.Errorf("update input artifacts: %w", err)
	}
	return nil
}

// InsertMedia persists a media record and fills in its ID and CreatedAt.
func (s *Store) InsertMedia(ctx context.Context, media *Media) error {
	if media == nil {
		return errors.New("media is nil")
	}
	if strings.TrimSpace(media.Path) == "" {
		return errors.New("media path is required")
	}
	media.CreatedAt = time.Now().UTC()

	var generationID any
	if media.GenerationID != nil {
		generationID = *media.GenerationID
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media (
            path, thumbnail_path, media_type, origin, width, height,
            duration_ms, size_bytes, rating, generation_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		media.Path,
		nullableString(media.ThumbnailPath),
		string(media.Type),
		string(media.Origin),
		media.Width,
		media.Height,
		media.DurationMS,
		media.SizeBytes,
		media.Rating,
		generationID,
		media.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	media.ID = id
	return nil
}

// GetMedia fetches a media record by identifier.
func (s *Store) GetMedia(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+mediaColumns+" FROM media WHERE id = ?",
		id,
	)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return media, err
}

// MediaForGeneration returns the artifacts produced by a generation.
func (s *Store) MediaForGeneration(ctx context.Context, generationID string) ([]*Media, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+mediaColumns+" FROM media WHERE generation_id = ? ORDER BY id",
		generationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query media by generation: %w", err)
	}
	defer rows.Close()
	return collectMedia(rows)
}

// ListMedia returns the most recent media records, newest first. A
// non-positive limit returns everything.
func (s *Store) ListMedia(ctx context.Context, limit int) ([]*Media, error) {
	query := "SELECT " + mediaColumns + " FROM media ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()
	return collectMedia(rows)
}

// SetRating updates a media record's user rating.
func (s *Store) SetRating(ctx context.Context, mediaID int64, rating int) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("rating %d out of range", rating)
	}
	_, err := s.db.ExecContext(ctx, "UPDATE media SET rating = ? WHERE id = ?", rating, mediaID)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return nil
}

const generationColumns = `id, seq, endpoint_key, provider_id, model_id, prompt,
    width, height, seed, steps, guidance, sampler, params_json, status,
    error_message, elapsed_ms, prompt_cache_hit, ref_cache_hit,
    output_paths_json, created_at, completed_at`

const mediaColumns = `id, path, thumbnail_path, media_type, origin, width,
    height, duration_ms, size_bytes, rating, generation_id, created_at`

func scanGeneration(scanner interface{ Scan(dest ...any) error }) (*Generation, error) {
	var (
		gen            Generation
		paramsJSON     sql.NullString
		errorMessage   sql.NullString
		promptCacheHit int
		refCacheHit    int
		outputsJSON    sql.NullString
		createdAt      string
		completedAt    sql.NullString
	)
	if err := scanner.Scan(
		&gen.ID,
		&gen.Seq,
		&gen.EndpointKey,
		&gen.ProviderID,
		&gen.ModelID,
		&gen.Prompt,
		&gen.Width,
		&gen.Height,
		&gen.Seed,
		&gen.Steps,
		&gen.Guidance,
		&gen.Sampler,
		&paramsJSON,
		(*string)(&gen.Status),
		&errorMessage,
		&gen.ElapsedMS,
		&promptCacheHit,
		&refCacheHit,
		&outputsJSON,
		&createdAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}

	gen.ParamsJSON = paramsJSON.String
	gen.Error = errorMessage.String
	gen.PromptCacheHit = promptCacheHit != 0
	gen.RefCacheHit = refCacheHit != 0

	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &gen.OutputPaths); err != nil {
			return nil, fmt.Errorf("decode output paths: %w", err)
		}
	}

	var err error
	if gen.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts, err := parseTimeString(completedAt.String)
		if err != nil {
			return nil, err
		}
		gen.CompletedAt = &ts
	}
	return &gen, nil
}

func collectGenerations(rows *sql.Rows) ([]*Generation, error) {
	var generations []*Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		generations = append(generations, gen)
	}
	return generations, rows.Err()
}

func scanMedia(scanner interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		media         Media
		thumbnailPath sql.NullString
		generationID  sql.NullString
		createdAt     string
	)
	if err := scanner.Scan(
		&media.ID,
		&media.Path,
		&thumbnailPath,
		(*string)(&media.Type),
		(*string)(&media.Origin),
		&media.Width,
		&media.Height,
		&media.DurationMS,
		&media.SizeBytes,
		&media.Rating,
		&generationID,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan media: %w", err)
	}

	media.ThumbnailPath = thumbnailPath.String
	if generationID.Valid {
		id := generationID.String
		media.GenerationID = &id
	}
	var err error
	if media.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, err
	}
	return &media, nil
}

func collectMedia(rows *sql.Rows) ([]*Media, error) {
	var records []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, media)
	}
	return records, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("generation %s not found", id)
	}
	return nil
}

func marshalPaths(paths []string) (any, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("encode output paths: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

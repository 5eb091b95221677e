package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"macsleuth/internal/codec"
	"macsleuth/internal/domain"
	"macsleuth/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    INTEGER NOT NULL,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestions (
	id              TEXT PRIMARY KEY,
	identifier      TEXT NOT NULL,
	person          TEXT NOT NULL,
	score           REAL NOT NULL,
	high_confidence INTEGER NOT NULL DEFAULT 0,
	matched_against TEXT,
	ip              TEXT,
	hostname        TEXT,
	evidence        TEXT,
	generated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_generated ON suggestions(generated_at);
CREATE INDEX IF NOT EXISTS idx_suggestions_person ON suggestions(person);
`

// Repository implements repository.StateStore and repository.SuggestionJournal
// using SQLite
type Repository struct {
	db    *sql.DB
	codec *codec.JSONCodec
}

var (
	_ repository.StateStore        = (*Repository)(nil)
	_ repository.SuggestionJournal = (*Repository)(nil)
)

// New opens the database at dbPath and applies the schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" coherent
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	repo := &Repository{db: db, codec: codec.NewJSONCodec()}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(schema)
	return err
}

// Close releases the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Load reads the state document. No stored document yields an empty snapshot.
// A failed query or an unparsable document yields an empty snapshot and an
// error wrapping repository.ErrCorruptState. Cancellation is returned as is.
func (r *Repository) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var document string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM engine_state WHERE id = 1`).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return domain.NewSnapshot(), fmt.Errorf("%w: query state: %w", repository.ErrCorruptState, err)
	}

	snap, err := r.codec.Parse(bytes.NewReader([]byte(document)))
	if err != nil {
		return domain.NewSnapshot(), fmt.Errorf("%w: %w", repository.ErrCorruptState, err)
	}

	return snap, nil
}

// Save replaces the state document in a single transaction
func (r *Repository) Save(ctx context.Context, snap *domain.Snapshot) error {
	var buf bytes.Buffer
	if err := r.codec.Export(snap, &buf); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO engine_state (id, version, document, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, codec.StateVersion, buf.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return tx.Commit()
}

// Append stores suggestions in one transaction. Suggestions without an ID
// are assigned one in place.
func (r *Repository) Append(ctx context.Context, suggestions []domain.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO suggestions (id, identifier, person, score, high_confidence,
			matched_against, ip, hostname, evidence, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range suggestions {
		s := &suggestions[i]
		if s.ID == "" {
			s.ID = uuid.New().String()
		}

		evidence, err := marshalToNull(s.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			s.ID, s.Identifier, s.Person, s.Score, boolToInt(s.HighConfidence),
			stringToNull(s.MatchedAgainst), stringToNull(s.IP), stringToNull(s.Hostname),
			evidence, formatTime(s.GeneratedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert suggestion %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

const selectSuggestions = `
	SELECT id, identifier, person, score, high_confidence,
		matched_against, ip, hostname, evidence, generated_at
	FROM suggestions
`

// Recent returns suggestions generated at or after since, newest first
func (r *Repository) Recent(ctx context.Context, since time.Time) ([]domain.Suggestion, error) {
	rows, err := r.db.QueryContext(ctx,
		selectSuggestions+` WHERE generated_at >= ? ORDER BY generated_at DESC, score DESC, id`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var result []domain.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}

	return result, nil
}

// Get returns a single suggestion by ID
func (r *Repository) Get(ctx context.Context, id string) (*domain.Suggestion, error) {
	row := r.db.QueryRowContext(ctx, selectSuggestions+` WHERE id = ?`, id)
	s, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, repository.ErrNotFound)
	}
	return s, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row scanner) (*domain.Suggestion, error) {
	var (
		s                        domain.Suggestion
		highConfidence           int64
		matchedAgainst, ip, host sql.NullString
		evidence                 sql.NullString
		generatedAt              string
	)

	err := row.Scan(&s.ID, &s.Identifier, &s.Person, &s.Score, &highConfidence,
		&matchedAgainst, &ip, &host, &evidence, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan suggestion: %w", err)
	}

	s.HighConfidence = highConfidence != 0
	s.MatchedAgainst = nullToString(matchedAgainst)
	s.IP = nullToString(ip)
	s.Hostname = nullToString(host)

	if err := unmarshalJSONField(evidence, &s.Evidence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence for %s: %w", s.ID, err)
	}

	if s.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse generated_at for %s: %w", s.ID, err)
	}

	return &s, nil
}

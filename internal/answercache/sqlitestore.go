package answercache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okdaichi/townvoice/internal/protocol"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS learned_answers (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	answer_text TEXT NOT NULL,
	emotion     TEXT NOT NULL,
	audio_b64   TEXT NOT NULL DEFAULT '',
	embedding   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);`

// SQLiteStore persists the learned snapshot in a local SQLite database.
// Single-file durability without an external server, for deployments that
// outgrow the JSON snapshot.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// The driver serializes access itself; a single connection avoids
	// SQLITE_BUSY churn under the snapshot-replace write pattern.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadLearned(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer_text, emotion, audio_b64, embedding, created_at
		 FROM learned_answers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query learned answers: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var emotion, vecJSON string
		if err := rows.Scan(&e.ID, &e.Question, &e.AnswerText, &emotion, &e.AudioBase64, &vecJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan learned answer: %w", err)
		}
		e.Emotion = protocol.ParseEmotion(emotion)
		if vecJSON != "" {
			if err := json.Unmarshal([]byte(vecJSON), &e.Vector); err != nil {
				// A corrupt vector only costs a re-embed on the next lookup.
				e.Vector = nil
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveLearned(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM learned_answers`); err != nil {
		return fmt.Errorf("clear learned answers: %w", err)
	}
	for _, e := range entries {
		vecJSON := ""
		if len(e.Vector) > 0 {
			raw, err := json.Marshal(e.Vector)
			if err != nil {
				return fmt.Errorf("encode embedding: %w", err)
			}
			vecJSON = string(raw)
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO learned_answers (id, question, answer_text, emotion, audio_b64, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Question, e.AnswerText, string(e.Emotion), e.AudioBase64, vecJSON, createdAt); err != nil {
			return fmt.Errorf("insert learned answer: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

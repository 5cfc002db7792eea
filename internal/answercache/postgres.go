package answercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okdaichi/townvoice/internal/protocol"
)

// PostgresStore persists the learned snapshot in PostgreSQL, for
// deployments where multiple hosts share one learned set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS learned_answers (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			emotion TEXT NOT NULL,
			audio_b64 TEXT NOT NULL DEFAULT '',
			embedding JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_learned_answers_created ON learned_answers (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadLearned(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, answer_text, emotion, audio_b64, embedding, created_at
		 FROM learned_answers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query learned answers: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var emotion string
		var vecJSON []byte
		if err := rows.Scan(&e.ID, &e.Question, &e.AnswerText, &emotion, &e.AudioBase64, &vecJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan learned answer: %w", err)
		}
		e.Emotion = protocol.ParseEmotion(emotion)
		if len(vecJSON) > 0 {
			if err := json.Unmarshal(vecJSON, &e.Vector); err != nil {
				e.Vector = nil
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learned answers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveLearned(ctx context.Context, entries []Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM learned_answers`); err != nil {
		return fmt.Errorf("clear learned answers: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var vecJSON []byte
		if len(e.Vector) > 0 {
			vecJSON, err = json.Marshal(e.Vector)
			if err != nil {
				return fmt.Errorf("encode embedding: %w", err)
			}
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO learned_answers (id, question, answer_text, emotion, audio_b64, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.Question, e.AnswerText, string(e.Emotion), e.AudioBase64, vecJSON, createdAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert learned answers: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

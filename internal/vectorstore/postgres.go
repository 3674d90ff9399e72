package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"guardian/internal/embed"
)

// PostgresStore keeps a shared corpus in one table, partitioned by
// collection. Similarity is computed client-side.
type PostgresStore struct {
	db         *sql.DB
	emb        embed.Embedder
	collection string

	schemaOnce sync.Once
	schemaErr  error
}

func OpenPostgres(dsn, collection string, emb embed.Embedder) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", ErrStoreUnavailable, err)
	}
	return NewPostgres(db, collection, emb), nil
}

func NewPostgres(db *sql.DB, collection string, emb embed.Embedder) *PostgresStore {
	if strings.TrimSpace(collection) == "" {
		collection = "default"
	}
	return &PostgresStore{db: db, emb: emb, collection: collection}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS guardian_passages (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  content TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  embedding JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_guardian_passages_source ON guardian_passages (collection, source);
`)
	})
	if s.schemaErr != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, s.schemaErr)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, docs []Document) (AddStats, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return AddStats{}, err
	}
	batch, dups := prepare(docs)
	stats := AddStats{Duplicates: dups}
	if len(batch) == 0 {
		return stats, nil
	}
	ids := make([]string, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
	}
	existing, err := s.existingIDs(ctx, ids)
	if err != nil {
		return stats, err
	}
	var fresh []Document
	for _, d := range batch {
		if _, ok := existing[d.ID]; ok {
			stats.Duplicates++
			continue
		}
		fresh = append(fresh, d)
	}
	if len(fresh) == 0 {
		return stats, nil
	}
	texts := make([]string, len(fresh))
	for i, d := range fresh {
		texts[i] = d.Content
	}
	vecs, err := s.emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("embed documents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %w", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()
	for i, d := range fresh {
		meta, _ := json.Marshal(d.Metadata)
		vec, _ := json.Marshal(vecs[i])
		res, err := tx.ExecContext(ctx, `
INSERT INTO guardian_passages (collection, id, content, source, metadata, embedding)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (collection, id) DO NOTHING`,
			s.collection, d.ID, d.Content, d.Source(), string(meta), string(vec))
		if err != nil {
			return stats, fmt.Errorf("insert passage %s: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stats.Duplicates++
			continue
		}
		stats.Added++
	}
	if err := tx.Commit(); err != nil {
		return AddStats{Duplicates: stats.Duplicates}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) existingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM guardian_passages WHERE collection = $1 AND id = ANY($2)`, s.collection, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: query ids: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (s *PostgresStore) Search(ctx context.Context, query string, k int, f Filter) ([]Match, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, err := s.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sqlText := `SELECT id, content, metadata, embedding FROM guardian_passages WHERE collection = $1`
	args := []any{s.collection}
	if f.Source != "" {
		args = append(args, f.Source)
		sqlText += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if f.SourceSuffix != "" {
		args = append(args, "%"+f.SourceSuffix)
		sqlText += fmt.Sprintf(" AND source LIKE $%d", len(args))
	}
	sqlText += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			d         Document
			meta, vec []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &vec); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &d.Metadata)
		var v []float32
		if err := json.Unmarshal(vec, &v); err != nil {
			return nil, fmt.Errorf("%w: corrupted embedding %s: %w", ErrStoreUnavailable, d.ID, err)
		}
		out = append(out, Match{Document: d, Score: cosine(q, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(out, k), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guardian_passages WHERE collection = $1`, s.collection).Scan(&n)
	return n, err
}

// Clear removes every passage in the collection.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM guardian_passages WHERE collection = $1`, s.collection)
	return err
}

func (s *PostgresStore) Close() error { return s.db.Close() }

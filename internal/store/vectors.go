// Package store keeps embedded document chunks in SQLite so retrieval works
// without a hosted vector index.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

var (
	ErrNoEmbedder = errors.New("vector store has no embedder")
	// ErrDimensionMismatch is returned when a query vector and a stored vector
	// differ in length, usually after switching embedding models.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// VectorStore is a vectorstores.VectorStore over a single SQLite table.
// Similarity is computed in Go, which is fine for the few thousand chunks a
// local index holds.
type VectorStore struct {
	DB        *sql.DB
	embedder  embeddings.Embedder
	namespace string
}

var _ vectorstores.VectorStore = (*VectorStore)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(path string, embedder embeddings.Embedder, namespace string) (*VectorStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writes.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata TEXT,
			vector BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS chunks_namespace ON chunks(namespace);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init vector store: %w", err)
		}
	}

	return &VectorStore{DB: db, embedder: embedder, namespace: namespace}, nil
}

func (s *VectorStore) Close() error {
	return s.DB.Close()
}

func (s *VectorStore) options(opts []vectorstores.Option) vectorstores.Options {
	o := vectorstores.Options{NameSpace: s.namespace, Embedder: s.embedder}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AddDocuments embeds docs and stores them, returning the generated ids.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	o := s.options(opts)
	if o.Embedder == nil {
		return nil, ErrNoEmbedder
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := o.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, namespace, content, metadata, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx, ids[i], o.NameSpace, d.PageContent, string(meta), encodeVector(vectors[i])); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments chunks of the namespace ranked
// by cosine similarity to query. Matches below the score threshold are
// dropped.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, opts ...vectorstores.Option) ([]schema.Document, error) {
	o := s.options(opts)
	if o.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if numDocuments <= 0 {
		return nil, nil
	}

	qv, err := o.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT content, metadata, vector FROM chunks WHERE namespace = ?`, o.NameSpace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var content string
		var meta sql.NullString
		var blob []byte
		if err := rows.Scan(&content, &meta, &blob); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		if len(vec) != len(qv) {
			return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(qv), len(vec))
		}
		score := cosine(qv, vec)
		if o.ScoreThreshold > 0 && score < o.ScoreThreshold {
			continue
		}
		doc := schema.Document{PageContent: content, Score: score}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if len(docs) > numDocuments {
		docs = docs[:numDocuments]
	}
	return docs, nil
}

// Count reports how many chunks namespace holds.
func (s *VectorStore) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE namespace = ?`, namespace).Scan(&n)
	return n, err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

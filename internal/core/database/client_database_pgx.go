package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/models"
)

// PGSearchBackend stores index documents in a Postgres table with pgvector
// columns for text and image embeddings.
type PGSearchBackend struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func NewPGSearchBackend(ctx context.Context, opts Options, logger *slog.Logger) (*PGSearchBackend, error) {
	dsn, err := opts.dsn()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &PGSearchBackend{db: db, table: tableName(opts.IndexName), logger: logger}, nil
}

func (b *PGSearchBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *PGSearchBackend) EnsureIndex(ctx context.Context, schema core.IndexSchema) error {
	if err := EnsureBootstrapped(ctx, b.db, b.table, schema); err != nil {
		return fmt.Errorf("bootstrap index %s: %w", schema.Name, err)
	}
	b.logger.Info("search index ready", "index", schema.Name, "table", b.table)
	return nil
}

// Upsert writes docs in a single transaction, replacing rows with the same id.
func (b *PGSearchBackend) Upsert(ctx context.Context, docs []models.IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, content, embedding, image_embedding, category, sourcepage, sourcefile,
			 storage_url, source_url, oids, groups)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			image_embedding = EXCLUDED.image_embedding,
			category = EXCLUDED.category,
			sourcepage = EXCLUDED.sourcepage,
			sourcefile = EXCLUDED.sourcefile,
			storage_url = EXCLUDED.storage_url,
			source_url = EXCLUDED.source_url,
			oids = EXCLUDED.oids,
			groups = EXCLUDED.groups
	`, quoteIdent(b.table))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range docs {
		d := &docs[i]
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Content, vectorArg(d.Embedding), vectorArg(d.ImageEmbedding), d.Category,
			d.SourcePage, d.SourceFile, d.StorageURL, d.SourceURL, nonNil(d.OIDs), nonNil(d.Groups),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns up to q.Top matching ids plus the exact total match count.
func (b *PGSearchBackend) Search(ctx context.Context, q core.SearchQuery) (core.SearchResult, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(array_to_json(oids)::text, '[]'), count(*) OVER ()
		FROM %s
		WHERE ($1 = '' OR sourcefile = $1)
		  AND ($2 = '' OR $2 = ANY(oids))
		  AND ($2 = '' OR NOT $4 OR oids = ARRAY[$2]::text[])
		ORDER BY id
		LIMIT $3
	`, quoteIdent(b.table))

	top := q.Top
	if top <= 0 {
		top = 50
	}
	rows, err := b.db.QueryContext(ctx, query, q.SourceFile, q.OID, top, q.SoleOwner)
	if err != nil {
		return core.SearchResult{}, err
	}
	defer rows.Close()

	var res core.SearchResult
	for rows.Next() {
		var (
			hit  core.SearchHit
			oids string
		)
		if err := rows.Scan(&hit.ID, &oids, &res.Count); err != nil {
			return core.SearchResult{}, err
		}
		if err := json.Unmarshal([]byte(oids), &hit.OIDs); err != nil {
			return core.SearchResult{}, fmt.Errorf("decode oids of %s: %w", hit.ID, err)
		}
		res.Hits = append(res.Hits, hit)
	}
	return res, rows.Err()
}

func (b *PGSearchBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, quoteIdent(b.table))
	res, err := b.db.ExecContext(ctx, q, ids)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	b.logger.Debug("deleted index documents", "requested", len(ids), "deleted", n)
	return nil
}

func (b *PGSearchBackend) DeleteAll(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE %s`, quoteIdent(b.table)))
	return err
}

// vectorArg maps an absent embedding onto SQL NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ core.SearchBackend = (*PGSearchBackend)(nil)

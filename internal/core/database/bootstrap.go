package db

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/markdave123-py/prepdocs/internal/core"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const schemaVersion = 1

var initTemplate = template.Must(template.ParseFS(bootstrapFS, "scripts/initdb.sql"))

type schemaParams struct {
	Table              string
	IndexPrefix        string
	EmbeddingType      string
	ImageEmbeddingType string
	TextConfig         string
}

// EnsureBootstrapped creates the index table once. Re-running against an
// existing index is a no-op.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, table string, schema core.IndexSchema) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(ctxBoot, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'prepdocs_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if exists {
		var hasVersion bool
		if err := db.QueryRowContext(ctxBoot,
			`SELECT EXISTS (SELECT 1 FROM prepdocs_meta WHERE index_name = $1 AND version = $2)`,
			schema.Name, schemaVersion,
		).Scan(&hasVersion); err != nil {
			return fmt.Errorf("meta version check failed: %w", err)
		}
		if hasVersion {
			return nil
		}
	}

	return runBootstrap(ctxBoot, db, table, schema)
}

func runBootstrap(ctx context.Context, db *sql.DB, table string, schema core.IndexSchema) error {
	script, err := renderSchema(table, schema)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prepdocs_meta (index_name, analyzer, use_acls, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (index_name) DO UPDATE SET version = EXCLUDED.version`,
		schema.Name, schema.Analyzer, schema.UseACLs, schemaVersion,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record index meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

func renderSchema(table string, schema core.IndexSchema) (string, error) {
	var buf bytes.Buffer
	err := initTemplate.Execute(&buf, schemaParams{
		Table:              quoteIdent(table),
		IndexPrefix:        table,
		EmbeddingType:      vectorType(schema.EmbeddingDim),
		ImageEmbeddingType: vectorType(schema.ImageVectorDim),
		TextConfig:         textSearchConfig(schema.Analyzer),
	})
	if err != nil {
		return "", fmt.Errorf("render initdb.sql: %w", err)
	}
	return buf.String(), nil
}

func vectorType(dim int) string {
	if dim <= 0 {
		return "vector"
	}
	return fmt.Sprintf("vector(%d)", dim)
}

// textSearchConfig maps an analyzer name like "en.microsoft" or "en.lucene"
// onto a Postgres text search configuration.
func textSearchConfig(analyzer string) string {
	lang, _, _ := strings.Cut(strings.ToLower(analyzer), ".")
	switch lang {
	case "en":
		return "english"
	case "fr":
		return "french"
	case "de":
		return "german"
	case "es":
		return "spanish"
	case "it":
		return "italian"
	case "nl":
		return "dutch"
	case "pt":
		return "portuguese"
	}
	return "simple"
}

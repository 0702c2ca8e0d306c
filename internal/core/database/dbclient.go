package db

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Options configures the Postgres search backend.
type Options struct {
	DatabaseURL string
	// SslCertPath, when set, enables verify-ca against the given root cert.
	SslCertPath string
	IndexName   string
}

// dsn returns the connection string with SSL parameters applied.
func (o Options) dsn() (string, error) {
	if o.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if o.SslCertPath == "" {
		return o.DatabaseURL, nil
	}
	if _, err := os.Stat(o.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", o.SslCertPath, err)
	}

	// Append SSL params to the provided DATABASE_URL safely.
	u, err := url.Parse(o.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", o.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]`)

// tableName maps an index name onto a safe, unquoted table name.
func tableName(index string) string {
	name := nonIdentChars.ReplaceAllString(strings.ToLower(index), "_")
	if name == "" {
		name = "search_index"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "idx_" + name
	}
	return name
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

package broker

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// identPattern restricts configurable table/column names; they are
// interpolated into queries and must never carry user input.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore resolves brokers from a database table. The table and column
// names are configurable so an existing application table can serve as the
// registry.
type SQLStore struct {
	db           *sql.DB
	table        string
	idColumn     string
	secretColumn string
}

// SQLStoreConfig names the registry table and columns. Zero values fall
// back to the defaults: brokers(app_id, secret).
type SQLStoreConfig struct {
	Table        string
	IDColumn     string
	SecretColumn string
}

// NewSQLStore creates a SQL-backed broker store.
func NewSQLStore(db *sql.DB, cfg SQLStoreConfig) (*SQLStore, error) {
	if cfg.Table == "" {
		cfg.Table = "brokers"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "app_id"
	}
	if cfg.SecretColumn == "" {
		cfg.SecretColumn = "secret"
	}

	for _, ident := range []string{cfg.Table, cfg.IDColumn, cfg.SecretColumn} {
		if !identPattern.MatchString(ident) {
			return nil, fmt.Errorf("invalid registry identifier %q", ident)
		}
	}

	return &SQLStore{
		db:           db,
		table:        cfg.Table,
		idColumn:     cfg.IDColumn,
		secretColumn: cfg.SecretColumn,
	}, nil
}

// FindByID looks the broker up by its id column.
func (s *SQLStore) FindByID(ctx context.Context, id string) (*Broker, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1`,
		s.idColumn, s.secretColumn, s.table, s.idColumn)

	var b Broker
	err := s.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Secret)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("broker %q: %w", id, ErrUnknownBroker)
	}
	if err != nil {
		return nil, fmt.Errorf("broker lookup failed: %w", err)
	}

	return &b, nil
}

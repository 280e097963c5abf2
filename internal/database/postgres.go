package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenPostgres connects to PostgreSQL, applies pending migrations and
// returns a ready store.
func OpenPostgres(dsn string) (*SQLStore, error) {
	if err := migrateUp(DialectPostgres, dsn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{conn: db, dialect: DialectPostgres}, nil
}

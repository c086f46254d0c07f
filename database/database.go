package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver
)

// InitDB initializes the database connection. It takes the database path as input.
func InitDB(dbPath string) (*sql.DB, error) {
	// Ensure the directory for the database file exists.
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open the SQLite database. It will be created if it doesn't exist.
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; funnel everything through one connection.
	db.SetMaxOpenConns(1)

	// Ping the database to verify the connection.
	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create the cooldowns table if it doesn't exist
	if err := createCooldownsTable(db); err != nil {
		db.Close() // Close the connection if table creation fails
		return nil, fmt.Errorf("failed to create cooldowns table: %w", err)
	}

	log.Println("Successfully connected to the database at", dbPath)
	return db, nil
}

// createCooldownsTable creates the 'cooldowns' table. The server-level
// timestamp is stored in the row whose author_id is empty.
func createCooldownsTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS cooldowns (
        server_id TEXT NOT NULL,
        author_id TEXT NOT NULL DEFAULT '',
        last_advertised_at INTEGER NOT NULL,
        channel_id TEXT NOT NULL DEFAULT '',
        message_id TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (server_id, author_id)
    );`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	// Databases created before messages were tracked lack these columns.
	for _, column := range []string{"channel_id", "message_id"} {
		if err := addColumnIfMissing(db, "cooldowns", column, "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_cooldowns_last ON cooldowns(last_advertised_at);"); err != nil {
		log.Printf("Warning: failed to create index: %v", err)
	}
	return nil
}

// addColumnIfMissing adds a column to an existing table.
func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	log.Printf("Added column %s to table %s", column, table)
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"restricted-promotion/models"
)

// serverRow is the author_id of the server-level timestamp row.
const serverRow = ""

// CooldownDB persists cooldown records in SQLite.
type CooldownDB struct {
	db *sql.DB
}

// NewCooldownDB opens (and if needed creates) the cooldown database at dbPath.
func NewCooldownDB(dbPath string) (*CooldownDB, error) {
	db, err := InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &CooldownDB{db: db}, nil
}

// Get loads the record of a target server; it returns nil when the server
// has no server-level row.
func (c *CooldownDB) Get(ctx context.Context, serverID string) (*models.CooldownRecord, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT author_id, last_advertised_at, channel_id, message_id FROM cooldowns WHERE server_id = ?", serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cooldowns for server %s: %w", serverID, err)
	}
	defer rows.Close()

	rec := &models.CooldownRecord{
		ServerID: serverID,
		Authors:  make(map[string]time.Time),
		Messages: make(map[string]models.MessageRef),
	}
	found := false
	for rows.Next() {
		var authorID string
		var at int64
		var msg models.MessageRef
		if err := rows.Scan(&authorID, &at, &msg.ChannelID, &msg.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan cooldown row: %w", err)
		}
		if authorID == serverRow {
			rec.LastAdvertisedAt = time.Unix(0, at)
			found = true
			continue
		}
		rec.Authors[authorID] = time.Unix(0, at)
		rec.Messages[authorID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cooldown rows: %w", err)
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

// Upsert writes the server-level and the author-level row in one transaction.
// The author row also remembers the advertisement message.
func (c *CooldownDB) Upsert(ctx context.Context, serverID, authorID string, msg models.MessageRef, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cooldown transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO cooldowns (server_id, author_id, last_advertised_at, channel_id, message_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for upserting cooldown: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, serverID, serverRow, at.UnixNano(), "", ""); err != nil {
		return fmt.Errorf("failed to upsert cooldown for server %s: %w", serverID, err)
	}
	if _, err := stmt.ExecContext(ctx, serverID, authorID, at.UnixNano(), msg.ChannelID, msg.MessageID); err != nil {
		return fmt.Errorf("failed to upsert cooldown of author %s for server %s: %w", authorID, serverID, err)
	}
	return tx.Commit()
}

// Prune removes author timestamps older than before, then server rows that
// are older than before and have no author rows left.
func (c *CooldownDB) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixNano()
	res, err := c.db.ExecContext(ctx, "DELETE FROM cooldowns WHERE author_id != ? AND last_advertised_at < ?", serverRow, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune author cooldowns: %w", err)
	}
	authors, _ := res.RowsAffected()

	res, err = c.db.ExecContext(ctx, `
    DELETE FROM cooldowns
    WHERE author_id = ?
        AND last_advertised_at < ?
        AND NOT EXISTS (
            SELECT 1 FROM cooldowns a WHERE a.server_id = cooldowns.server_id AND a.author_id != ?
        )`, serverRow, cutoff, serverRow)
	if err != nil {
		return authors, fmt.Errorf("failed to prune server cooldowns: %w", err)
	}
	servers, _ := res.RowsAffected()
	return authors + servers, nil
}

// Close closes the database connection.
func (c *CooldownDB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

package cache

import (
	"database/sql"
	"fmt"
)

// Stats summarizes cache contents
type Stats struct {
	EmailCount      uint32 `json:"emailCount"`
	AttachmentCount uint32 `json:"attachmentCount"`
	TotalSizeBytes  uint64 `json:"totalSizeBytes"`
	OldestEmail     string `json:"oldestEmail,omitempty"`
	NewestEmail     string `json:"newestEmail,omitempty"`
}

// GetStats computes counts and byte totals directly from LENGTH()
func (c *Cache) GetStats() (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Stats{}

	if err := c.db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&stats.EmailCount); err != nil {
		return nil, fmt.Errorf("failed to count emails: %w", err)
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM attachments").Scan(&stats.AttachmentCount); err != nil {
		return nil, fmt.Errorf("failed to count attachments: %w", err)
	}

	var textSize, attachmentSize sql.NullInt64
	if err := c.db.QueryRow(
		"SELECT COALESCE(SUM(LENGTH(body_text) + LENGTH(body_html) + LENGTH(subject)), 0) FROM emails",
	).Scan(&textSize); err != nil {
		return nil, fmt.Errorf("failed to sum text sizes: %w", err)
	}
	if err := c.db.QueryRow(
		"SELECT COALESCE(SUM(LENGTH(data)), 0) FROM attachments WHERE data IS NOT NULL",
	).Scan(&attachmentSize); err != nil {
		return nil, fmt.Errorf("failed to sum attachment sizes: %w", err)
	}
	stats.TotalSizeBytes = uint64(textSize.Int64 + attachmentSize.Int64)

	var oldest, newest sql.NullString
	err := c.db.QueryRow("SELECT date FROM emails ORDER BY date_ts ASC LIMIT 1").Scan(&oldest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get oldest email: %w", err)
	}
	err = c.db.QueryRow("SELECT date FROM emails ORDER BY date_ts DESC LIMIT 1").Scan(&newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get newest email: %w", err)
	}
	stats.OldestEmail = oldest.String
	stats.NewestEmail = newest.String

	return stats, nil
}

// Clear deletes all cached data in one transaction and vacuums
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"attachments", "email_categories", "spam_scan", "emails", "sync_state", "spam_scan_state"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	if _, err := c.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// CleanupOld deletes rows cached earlier than days ago, returning the
// number removed. Retention works off cached_at, never date_ts, so
// recently cached historical mail survives. days == 0 means unbounded
// retention and is a no-op.
func (c *Cache) CleanupOld(days uint32) (uint32, error) {
	if days == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := nowUnix() - int64(days)*86400
	res, err := c.db.Exec("DELETE FROM emails WHERE cached_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old emails: %w", err)
	}
	n, _ := res.RowsAffected()
	return uint32(n), nil
}

package cache

import (
	"database/sql"
	"fmt"
)

// SpamScan is a memoized spam verdict for one message
type SpamScan struct {
	Folder     string  `json:"folder"`
	UID        uint32  `json:"uid"`
	IsSpam     bool    `json:"isSpam"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	ScannedTS  int64   `json:"scannedTs"`
}

// GetSpamScan returns the memoized verdict, nil when the message has
// not been scanned.
func (c *Cache) GetSpamScan(folder string, uid uint32) (*SpamScan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &SpamScan{}
	var isSpam int
	var reason sql.NullString
	err := c.db.QueryRow(
		"SELECT folder, uid, is_spam, confidence, reason, scanned_ts FROM spam_scan WHERE folder = ? AND uid = ?",
		folder, uid).Scan(&s.Folder, &s.UID, &isSpam, &s.Confidence, &reason, &s.ScannedTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query spam scan: %w", err)
	}
	s.IsSpam = isSpam != 0
	s.Reason = reason.String
	return s, nil
}

// SetSpamScan memoizes a spam verdict
func (c *Cache) SetSpamScan(folder string, uid uint32, isSpam bool, confidence float64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO spam_scan (folder, uid, is_spam, confidence, reason, scanned_ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		folder, uid, boolToInt(isSpam), confidence, reason, nowUnix())
	if err != nil {
		return fmt.Errorf("failed to set spam scan: %w", err)
	}
	return nil
}

// SpamScanWatermark returns the highest scanned UID for a folder
func (c *Cache) SpamScanWatermark(folder string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var uid uint32
	err := c.db.QueryRow(
		"SELECT highest_scanned_uid FROM spam_scan_state WHERE folder = ?",
		folder).Scan(&uid)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query spam scan state: %w", err)
	}
	return uid, nil
}

// SetSpamScanWatermark advances the spam-scan watermark; like the sync
// watermark it is clamped monotonic.
func (c *Cache) SetSpamScanWatermark(folder string, highestUID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO spam_scan_state (folder, highest_scanned_uid)
		VALUES (?, ?)
		ON CONFLICT(folder) DO UPDATE SET
			highest_scanned_uid = MAX(highest_scanned_uid, excluded.highest_scanned_uid)`,
		folder, highestUID)
	if err != nil {
		return fmt.Errorf("failed to set spam scan state: %w", err)
	}
	return nil
}

// UnscannedUIDs returns cached UIDs above the spam-scan watermark,
// oldest first so the watermark can advance in order.
func (c *Cache) UnscannedUIDs(folder string, limit uint32) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT e.uid FROM emails e
		WHERE e.folder = ?
		  AND e.uid > COALESCE((SELECT highest_scanned_uid FROM spam_scan_state WHERE folder = ?), 0)
		ORDER BY e.uid ASC
		LIMIT ?`,
		folder, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscanned emails: %w", err)
	}
	defer rows.Close()

	var uids []uint32
	for rows.Next() {
		var uid uint32
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

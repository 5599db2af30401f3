package cache

import (
	"database/sql"
	"fmt"

	"github.com/zitrone/mailengine/internal/codec"
	"github.com/zitrone/mailengine/internal/imap"
)

// Headers returns cached headers for a folder, newest first by date_ts
func (c *Cache) Headers(folder string, start, limit uint32) ([]*imap.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT uid, subject, from_addr, to_addr, date, is_read, has_attachments
		FROM emails
		WHERE folder = ?
		ORDER BY date_ts DESC
		LIMIT ? OFFSET ?`,
		folder, limit, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query headers: %w", err)
	}
	defer rows.Close()

	var headers []*imap.Header
	for rows.Next() {
		h := &imap.Header{}
		var subject, from, to, date sql.NullString
		var isRead, hasAttachments int
		if err := rows.Scan(&h.UID, &subject, &from, &to, &date, &isRead, &hasAttachments); err != nil {
			return nil, fmt.Errorf("failed to scan header: %w", err)
		}
		h.Subject = subject.String
		h.From = from.String
		h.To = to.String
		h.Date = date.String
		h.IsRead = isRead != 0
		h.HasAttachments = hasAttachments != 0
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// Email returns a cached message with body and attachment metadata but
// no blob bytes; nil when the message is not cached.
func (c *Cache) Email(folder string, uid uint32) (*imap.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	email := &imap.Email{}
	var subject, from, to, cc, date, bodyText, bodyHTML sql.NullString
	var isRead, hasAttachments int

	err := c.db.QueryRow(`
		SELECT uid, subject, from_addr, to_addr, cc, date, is_read, has_attachments, body_text, body_html
		FROM emails
		WHERE folder = ? AND uid = ?`,
		folder, uid).Scan(
		&email.UID, &subject, &from, &to, &cc, &date,
		&isRead, &hasAttachments, &bodyText, &bodyHTML,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query email: %w", err)
	}

	email.Subject = subject.String
	email.From = from.String
	email.To = to.String
	email.Cc = cc.String
	email.Date = date.String
	email.IsRead = isRead != 0
	email.HasAttachments = hasAttachments != 0
	email.BodyText = bodyText.String
	email.BodyHTML = bodyHTML.String

	rows, err := c.db.Query(
		"SELECT filename, mime_type, size FROM attachments WHERE folder = ? AND email_uid = ?",
		folder, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att codec.AttachmentInfo
		var filename, mimeType sql.NullString
		if err := rows.Scan(&filename, &mimeType, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		att.Filename = filename.String
		att.MIMEType = mimeType.String
		email.Attachments = append(email.Attachments, att)
	}

	return email, rows.Err()
}

// StoreHeader upserts a header row
func (c *Cache) StoreHeader(folder string, h *imap.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeHeaderLocked(folder, h)
}

func (c *Cache) storeHeaderLocked(folder string, h *imap.Header) error {
	_, err := c.db.Exec(`
		INSERT INTO emails (uid, folder, subject, from_addr, to_addr, date, date_ts, is_read, has_attachments, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder, uid) DO UPDATE SET
			subject = excluded.subject,
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			date = excluded.date,
			date_ts = excluded.date_ts,
			is_read = excluded.is_read,
			has_attachments = excluded.has_attachments`,
		h.UID, folder, h.Subject, h.From, h.To, h.Date,
		parseDateToTimestamp(h.Date), boolToInt(h.IsRead), boolToInt(h.HasAttachments), nowUnix())
	if err != nil {
		return fmt.Errorf("failed to store header: %w", err)
	}
	return nil
}

// StoreHeaders upserts a batch of headers in one transaction
func (c *Cache) StoreHeaders(folder string, headers []*imap.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO emails (uid, folder, subject, from_addr, to_addr, date, date_ts, is_read, has_attachments, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder, uid) DO UPDATE SET
			subject = excluded.subject,
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			date = excluded.date,
			date_ts = excluded.date_ts,
			is_read = excluded.is_read,
			has_attachments = excluded.has_attachments`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := nowUnix()
	for _, h := range headers {
		if _, err := stmt.Exec(
			h.UID, folder, h.Subject, h.From, h.To, h.Date,
			parseDateToTimestamp(h.Date), boolToInt(h.IsRead), boolToInt(h.HasAttachments), now,
		); err != nil {
			return fmt.Errorf("failed to store header %d: %w", h.UID, err)
		}
	}

	return tx.Commit()
}

// StoreEmailBody fills in the bodies of an already cached header
func (c *Cache) StoreEmailBody(folder string, uid uint32, bodyText, bodyHTML string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"UPDATE emails SET body_text = ?, body_html = ? WHERE folder = ? AND uid = ?",
		bodyText, bodyHTML, folder, uid)
	if err != nil {
		return fmt.Errorf("failed to store email body: %w", err)
	}
	return nil
}

// StoreEmail upserts a full message including bodies and attachment
// metadata.
func (c *Cache) StoreEmail(folder string, email *imap.Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO emails (uid, folder, subject, from_addr, to_addr, cc, date, date_ts, is_read, has_attachments, body_text, body_html, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder, uid) DO UPDATE SET
			subject = excluded.subject,
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			cc = excluded.cc,
			date = excluded.date,
			date_ts = excluded.date_ts,
			is_read = excluded.is_read,
			has_attachments = excluded.has_attachments,
			body_text = excluded.body_text,
			body_html = excluded.body_html`,
		email.UID, folder, email.Subject, email.From, email.To, email.Cc, email.Date,
		parseDateToTimestamp(email.Date), boolToInt(email.IsRead),
		boolToInt(len(email.Attachments) > 0), email.BodyText, email.BodyHTML, nowUnix())
	if err != nil {
		return fmt.Errorf("failed to store email: %w", err)
	}

	// Replace attachment metadata
	if _, err := tx.Exec("DELETE FROM attachments WHERE folder = ? AND email_uid = ?", folder, email.UID); err != nil {
		return fmt.Errorf("failed to clear attachments: %w", err)
	}
	for _, att := range email.Attachments {
		if _, err := tx.Exec(
			"INSERT INTO attachments (email_uid, folder, filename, mime_type, size) VALUES (?, ?, ?, ?, ?)",
			email.UID, folder, att.Filename, att.MIMEType, att.Size,
		); err != nil {
			return fmt.Errorf("failed to store attachment metadata: %w", err)
		}
	}

	return tx.Commit()
}

// StoreAttachmentData attaches blob bytes to a cached attachment row
func (c *Cache) StoreAttachmentData(folder string, uid uint32, filename string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"UPDATE attachments SET data = ? WHERE folder = ? AND email_uid = ? AND filename = ?",
		data, folder, uid, filename)
	if err != nil {
		return fmt.Errorf("failed to store attachment data: %w", err)
	}
	return nil
}

// AttachmentData returns cached blob bytes, nil when absent
func (c *Cache) AttachmentData(folder string, uid uint32, filename string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow(
		"SELECT data FROM attachments WHERE folder = ? AND email_uid = ? AND filename = ?",
		folder, uid, filename).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment data: %w", err)
	}
	return data, nil
}

// UpdateReadStatus flips the read flag of a cached message
func (c *Cache) UpdateReadStatus(folder string, uid uint32, isRead bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"UPDATE emails SET is_read = ? WHERE folder = ? AND uid = ?",
		boolToInt(isRead), folder, uid)
	if err != nil {
		return fmt.Errorf("failed to update read status: %w", err)
	}
	return nil
}

// DeleteEmail removes a cached message; attachments and category
// assignments cascade.
func (c *Cache) DeleteEmail(folder string, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec("DELETE FROM emails WHERE folder = ? AND uid = ?", folder, uid)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	return nil
}

// HasBody reports whether a cached message already carries its body,
// to avoid redundant fetches.
func (c *Cache) HasBody(folder string, uid uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var has bool
	err := c.db.QueryRow(
		"SELECT body_text IS NOT NULL AND body_text != '' FROM emails WHERE folder = ? AND uid = ?",
		folder, uid).Scan(&has)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check email body: %w", err)
	}
	return has, nil
}

// Search runs a case-insensitive substring search across subject,
// sender, recipient, and body text; at most 100 rows, newest first.
// This is a local filter; server search goes through the protocol
// layer.
func (c *Cache) Search(query string) ([]*imap.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pattern := "%" + query + "%"
	rows, err := c.db.Query(`
		SELECT uid, subject, from_addr, to_addr, date, is_read, has_attachments
		FROM emails
		WHERE subject LIKE ? OR from_addr LIKE ? OR to_addr LIKE ? OR body_text LIKE ?
		ORDER BY date_ts DESC
		LIMIT 100`,
		pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	defer rows.Close()

	var headers []*imap.Header
	for rows.Next() {
		h := &imap.Header{}
		var subject, from, to, date sql.NullString
		var isRead, hasAttachments int
		if err := rows.Scan(&h.UID, &subject, &from, &to, &date, &isRead, &hasAttachments); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		h.Subject = subject.String
		h.From = from.String
		h.To = to.String
		h.Date = date.String
		h.IsRead = isRead != 0
		h.HasAttachments = hasAttachments != 0
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// SyncState is the per-folder synchronization watermark
type SyncState struct {
	Folder     string `json:"folder"`
	LastSyncTS int64  `json:"lastSyncTs"`
	HighestUID uint32 `json:"highestUid"`
}

// GetSyncState returns the watermark for a folder, nil when none exists
func (c *Cache) GetSyncState(folder string) (*SyncState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &SyncState{}
	err := c.db.QueryRow(
		"SELECT folder, last_sync_ts, highest_uid FROM sync_state WHERE folder = ?",
		folder).Scan(&s.Folder, &s.LastSyncTS, &s.HighestUID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	return s, nil
}

// SetSyncState advances the per-folder watermark. The stored UID is
// clamped monotonic: a lower value never decreases it.
func (c *Cache) SetSyncState(folder string, highestUID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO sync_state (folder, last_sync_ts, highest_uid)
		VALUES (?, ?, ?)
		ON CONFLICT(folder) DO UPDATE SET
			last_sync_ts = excluded.last_sync_ts,
			highest_uid = MAX(highest_uid, excluded.highest_uid)`,
		folder, nowUnix(), highestUID)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return nil
}

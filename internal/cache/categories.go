package cache

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zitrone/mailengine/internal/imap"
)

// Categories returns all categories ordered by sort_order
func (c *Cache) Categories() ([]Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(
		"SELECT id, name, color, icon, is_system, sort_order FROM categories ORDER BY sort_order")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var cat Category
		var icon sql.NullString
		var isSystem int
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Color, &icon, &isSystem, &cat.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cat.Icon = icon.String
		cat.IsSystem = isSystem != 0
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// CreateCategory creates a new user category
func (c *Cache) CreateCategory(name, color, icon string) (*Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := "custom_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	var maxOrder int
	if err := c.db.QueryRow("SELECT COALESCE(MAX(sort_order), 0) FROM categories").Scan(&maxOrder); err != nil {
		return nil, fmt.Errorf("failed to get max sort order: %w", err)
	}

	if _, err := c.db.Exec(
		"INSERT INTO categories (id, name, color, icon, is_system, sort_order) VALUES (?, ?, ?, ?, 0, ?)",
		id, name, color, icon, maxOrder+1,
	); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	return &Category{
		ID:        id,
		Name:      name,
		Color:     color,
		Icon:      icon,
		SortOrder: maxOrder + 1,
	}, nil
}

// UpdateCategory updates a user category. System categories are
// read-only.
func (c *Cache) UpdateCategory(id, name, color, icon string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec(
		"UPDATE categories SET name = ?, color = ?, icon = ? WHERE id = ? AND is_system = 0",
		name, color, icon, id)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %q not found or is a system category", id)
	}
	return nil
}

// DeleteCategory deletes a user category and its email assignments.
// System categories are read-only.
func (c *Cache) DeleteCategory(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var isSystem int
	err = tx.QueryRow("SELECT is_system FROM categories WHERE id = ?", id).Scan(&isSystem)
	if err == sql.ErrNoRows {
		return fmt.Errorf("category %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up category: %w", err)
	}
	if isSystem != 0 {
		return fmt.Errorf("category %q is a system category", id)
	}

	if _, err := tx.Exec("DELETE FROM email_categories WHERE category_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove category assignments: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM categories WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	return tx.Commit()
}

// EmailCategory returns the category id assigned to a message, empty
// when unassigned.
func (c *Cache) EmailCategory(folder string, uid uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var categoryID string
	err := c.db.QueryRow(
		"SELECT category_id FROM email_categories WHERE folder = ? AND uid = ?",
		folder, uid).Scan(&categoryID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query email category: %w", err)
	}
	return categoryID, nil
}

// SetEmailCategory assigns a category to a message. A user-override
// row is sticky: later automatic categorization never replaces it.
func (c *Cache) SetEmailCategory(folder string, uid uint32, categoryID string, confidence float64, isUserOverride bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !isUserOverride {
		var existingOverride int
		err := c.db.QueryRow(
			"SELECT is_user_override FROM email_categories WHERE folder = ? AND uid = ?",
			folder, uid).Scan(&existingOverride)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to check category override: %w", err)
		}
		if err == nil && existingOverride != 0 {
			// Sticky user choice wins over automatic categorization
			return nil
		}
	}

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO email_categories (folder, uid, category_id, confidence, is_user_override, categorized_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		folder, uid, categoryID, confidence, boolToInt(isUserOverride), nowUnix())
	if err != nil {
		return fmt.Errorf("failed to set email category: %w", err)
	}
	return nil
}

// Uncategorized returns UIDs of messages lacking a category assignment,
// newest first.
func (c *Cache) Uncategorized(folder string, limit uint32) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT e.uid FROM emails e
		LEFT JOIN email_categories ec ON e.folder = ec.folder AND e.uid = ec.uid
		WHERE e.folder = ? AND ec.uid IS NULL
		ORDER BY e.date_ts DESC
		LIMIT ?`,
		folder, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncategorized emails: %w", err)
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

// EmailsByCategory lists cached headers carrying a category, newest
// first, capped at 200 rows.
func (c *Cache) EmailsByCategory(categoryID string) ([]*imap.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT e.uid, e.subject, e.from_addr, e.to_addr, e.date, e.is_read, e.has_attachments
		FROM emails e
		JOIN email_categories ec ON e.folder = ec.folder AND e.uid = ec.uid
		WHERE ec.category_id = ?
		ORDER BY e.date_ts DESC
		LIMIT 200`,
		categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails by category: %w", err)
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

// CategoryCounts returns per-category unread counts for a folder
func (c *Cache) CategoryCounts(folder string) (map[string]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT ec.category_id, COUNT(*)
		FROM email_categories ec
		JOIN emails e ON ec.folder = e.folder AND ec.uid = e.uid
		WHERE ec.folder = ? AND e.is_read = 0
		GROUP BY ec.category_id`,
		folder)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint32)
	for rows.Next() {
		var id string
		var n uint32
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// Package cache implements the per-account local message cache: an
// embedded SQLite store for headers, bodies, attachments, category
// assignments, spam-scan memoization, and per-folder sync watermarks.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
	_ "modernc.org/sqlite"
)

// Cache is the SQL store for one account. A single connection is used,
// serialized by an internal mutex; callers must not hold the registry
// mutex across long cache operations.
type Cache struct {
	db        *sql.DB
	accountID string
	mu        sync.Mutex
	log       zerolog.Logger
}

// Dir returns the cache directory, creating it with owner-only
// permissions.
func Dir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	dir := filepath.Join(base, "MailClient", "cache")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccountID derives a filesystem-safe database name from an
// account id.
func SanitizeAccountID(accountID string) string {
	r := strings.NewReplacer(
		"@", "_at_",
		"/", "_",
		"\\", "_",
		":", "_",
	)
	return r.Replace(accountID)
}

// Open opens or creates the cache database for an account. The schema
// is created idempotently and default categories are seeded once.
func Open(accountID string) (*Cache, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, SanitizeAccountID(accountID)+".db")
	return OpenPath(accountID, path)
}

// OpenPath opens the cache at an explicit path (used by tests)
func OpenPath(accountID, path string) (*Cache, error) {
	// PRAGMAs ride in the DSN so every new connection gets the same
	// configuration; pooled connections without busy_timeout cause
	// spurious SQLITE_BUSY errors.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	c := &Cache{
		db:        db,
		accountID: accountID,
		log:       logging.WithComponent("cache"),
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.seedCategories(); err != nil {
		db.Close()
		return nil, err
	}

	c.log.Debug().Str("accountId", accountID).Str("path", path).Msg("Cache opened")
	return c, nil
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS emails (
	uid INTEGER NOT NULL,
	folder TEXT NOT NULL,
	subject TEXT,
	from_addr TEXT,
	to_addr TEXT,
	cc TEXT,
	date TEXT,
	date_ts INTEGER,
	is_read INTEGER DEFAULT 0,
	has_attachments INTEGER DEFAULT 0,
	body_text TEXT,
	body_html TEXT,
	cached_at INTEGER NOT NULL,
	PRIMARY KEY (folder, uid)
);

CREATE TABLE IF NOT EXISTS attachments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email_uid INTEGER NOT NULL,
	folder TEXT NOT NULL,
	filename TEXT,
	mime_type TEXT,
	size INTEGER,
	data BLOB,
	FOREIGN KEY (folder, email_uid) REFERENCES emails(folder, uid) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sync_state (
	folder TEXT PRIMARY KEY,
	last_sync_ts INTEGER,
	highest_uid INTEGER
);

CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date_ts DESC);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	color TEXT NOT NULL,
	icon TEXT,
	is_system INTEGER DEFAULT 0,
	sort_order INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS email_categories (
	folder TEXT NOT NULL,
	uid INTEGER NOT NULL,
	category_id TEXT NOT NULL,
	confidence REAL DEFAULT 0.5,
	is_user_override INTEGER DEFAULT 0,
	categorized_at INTEGER NOT NULL,
	PRIMARY KEY (folder, uid),
	FOREIGN KEY (folder, uid) REFERENCES emails(folder, uid) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_email_categories_category ON email_categories(category_id);

CREATE TABLE IF NOT EXISTS spam_scan (
	folder TEXT NOT NULL,
	uid INTEGER NOT NULL,
	is_spam INTEGER NOT NULL,
	confidence REAL DEFAULT 0.5,
	reason TEXT,
	scanned_ts INTEGER NOT NULL,
	PRIMARY KEY (folder, uid),
	FOREIGN KEY (folder, uid) REFERENCES emails(folder, uid) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS spam_scan_state (
	folder TEXT PRIMARY KEY,
	highest_scanned_uid INTEGER
);
`

func (c *Cache) createSchema() error {
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Category is a user-visible email category. System categories cannot
// be updated or deleted.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Icon      string `json:"icon,omitempty"`
	IsSystem  bool   `json:"isSystem"`
	SortOrder int    `json:"sortOrder"`
}

// DefaultCategories is the fixed seed set, inserted once per account on
// first cache open.
func DefaultCategories() []Category {
	return []Category{
		{ID: "work", Name: "Work", Color: "#3B82F6", Icon: "briefcase", IsSystem: true, SortOrder: 1},
		{ID: "personal", Name: "Personal", Color: "#10B981", Icon: "user", IsSystem: true, SortOrder: 2},
		{ID: "newsletter", Name: "Newsletter", Color: "#8B5CF6", Icon: "newspaper", IsSystem: true, SortOrder: 3},
		{ID: "promotions", Name: "Promotions", Color: "#F59E0B", Icon: "tag", IsSystem: true, SortOrder: 4},
		{ID: "social", Name: "Social", Color: "#EC4899", Icon: "users", IsSystem: true, SortOrder: 5},
		{ID: "updates", Name: "Updates", Color: "#6366F1", Icon: "bell", IsSystem: true, SortOrder: 6},
		{ID: "finance", Name: "Finance", Color: "#059669", Icon: "currency", IsSystem: true, SortOrder: 7},
		{ID: "travel", Name: "Travel", Color: "#0EA5E9", Icon: "plane", IsSystem: true, SortOrder: 8},
	}
}

func (c *Cache) seedCategories() error {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, cat := range DefaultCategories() {
		if _, err := c.db.Exec(
			"INSERT OR IGNORE INTO categories (id, name, color, icon, is_system, sort_order) VALUES (?, ?, ?, ?, ?, ?)",
			cat.ID, cat.Name, cat.Color, cat.Icon, boolToInt(cat.IsSystem), cat.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to seed category %s: %w", cat.ID, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowUnix() int64 {
	return time.Now().Unix()
}

// parseDateToTimestamp best-effort parses a protocol-native date string
// for cache ordering. Unparseable dates fall back to now, a known
// ordering quirk.
func parseDateToTimestamp(date string) int64 {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, strings.TrimSpace(date)); err == nil {
			return t.Unix()
		}
	}
	return nowUnix()
}

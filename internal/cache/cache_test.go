package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zitrone/mailengine/internal/codec"
	"github.com/zitrone/mailengine/internal/imap"
)

func attachmentInfo(name string) codec.AttachmentInfo {
	return codec.AttachmentInfo{
		Filename: name,
		MIMEType: "application/octet-stream",
		Size:     10,
		PartID:   "2",
		Encoding: "base64",
	}
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenPath("user@example.com", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func header(uid uint32, subject string) *imap.Header {
	return &imap.Header{
		UID:     uid,
		Subject: subject,
		From:    "alice@example.com",
		To:      "bob@example.com",
		Date:    time.Unix(int64(1700000000+uid), 0).UTC().Format(time.RFC1123Z),
	}
}

func TestSanitizeAccountID(t *testing.T) {
	got := SanitizeAccountID(`user@ex.com/a\b:c`)
	want := "user_at_ex.com_a_b_c"
	if got != want {
		t.Errorf("SanitizeAccountID = %q, want %q", got, want)
	}
}

func TestStoreAndFetchHeaders(t *testing.T) {
	c := openTestCache(t)

	headers := []*imap.Header{header(1, "first"), header(2, "second"), header(3, "third")}
	if err := c.StoreHeaders("INBOX", headers); err != nil {
		t.Fatalf("StoreHeaders: %v", err)
	}

	got, err := c.Headers("INBOX", 0, 10)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	// Newest first by date_ts
	if got[0].UID != 3 || got[2].UID != 1 {
		t.Errorf("order = %d,%d,%d", got[0].UID, got[1].UID, got[2].UID)
	}

	// Pagination
	page, err := c.Headers("INBOX", 1, 1)
	if err != nil || len(page) != 1 || page[0].UID != 2 {
		t.Errorf("paged = %+v, %v", page, err)
	}
}

func TestStoreEmailAndCascade(t *testing.T) {
	c := openTestCache(t)

	email := &imap.Email{Header: *header(5, "with attachment")}
	email.BodyText = "body"
	email.Attachments = append(email.Attachments, attachmentInfo("a.pdf"))
	if err := c.StoreEmail("INBOX", email); err != nil {
		t.Fatalf("StoreEmail: %v", err)
	}

	if err := c.SetEmailCategory("INBOX", 5, "work", 0.9, false); err != nil {
		t.Fatalf("SetEmailCategory: %v", err)
	}
	if err := c.SetSpamScan("INBOX", 5, false, 0.8, "looks fine"); err != nil {
		t.Fatalf("SetSpamScan: %v", err)
	}

	// P1: delete cascades to attachments, category assignment, spam scan
	if err := c.DeleteEmail("INBOX", 5); err != nil {
		t.Fatalf("DeleteEmail: %v", err)
	}

	var n int
	for _, table := range []string{"attachments", "email_categories", "spam_scan"} {
		if err := c.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s rows remain after email delete: %d", table, n)
		}
	}
}

func TestEmailRoundTrip(t *testing.T) {
	c := openTestCache(t)

	email := &imap.Email{Header: *header(7, "hello")}
	email.Cc = "carol@example.com"
	email.BodyText = "text body"
	email.BodyHTML = "<p>html</p>"
	email.Attachments = append(email.Attachments, attachmentInfo("doc.pdf"))

	if err := c.StoreEmail("INBOX", email); err != nil {
		t.Fatalf("StoreEmail: %v", err)
	}

	got, err := c.Email("INBOX", 7)
	if err != nil {
		t.Fatalf("Email: %v", err)
	}
	if got == nil {
		t.Fatal("Email returned nil")
	}
	if got.Subject != "hello" || got.BodyText != "text body" || got.Cc != "carol@example.com" {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Filename != "doc.pdf" {
		t.Errorf("attachments = %+v", got.Attachments)
	}

	// Missing message is success with nil
	missing, err := c.Email("INBOX", 999)
	if err != nil || missing != nil {
		t.Errorf("missing = %+v, %v", missing, err)
	}
}

func TestHasBody(t *testing.T) {
	c := openTestCache(t)

	if err := c.StoreHeader("INBOX", header(1, "headers only")); err != nil {
		t.Fatalf("StoreHeader: %v", err)
	}

	// I3: headers may exist without bodies
	has, err := c.HasBody("INBOX", 1)
	if err != nil || has {
		t.Errorf("HasBody before body = %v, %v", has, err)
	}

	if err := c.StoreEmailBody("INBOX", 1, "now with body", ""); err != nil {
		t.Fatalf("StoreEmailBody: %v", err)
	}
	has, err = c.HasBody("INBOX", 1)
	if err != nil || !has {
		t.Errorf("HasBody after body = %v, %v", has, err)
	}
}

func TestSyncStateClamp(t *testing.T) {
	c := openTestCache(t)

	// P2: consecutive writes read back as the max
	if err := c.SetSyncState("INBOX", 100); err != nil {
		t.Fatalf("SetSyncState: %v", err)
	}
	if err := c.SetSyncState("INBOX", 50); err != nil {
		t.Fatalf("SetSyncState: %v", err)
	}

	s, err := c.GetSyncState("INBOX")
	if err != nil || s == nil {
		t.Fatalf("GetSyncState: %+v, %v", s, err)
	}
	if s.HighestUID != 100 {
		t.Errorf("HighestUID = %d, want clamped 100", s.HighestUID)
	}

	if err := c.SetSyncState("INBOX", 150); err != nil {
		t.Fatalf("SetSyncState: %v", err)
	}
	s, _ = c.GetSyncState("INBOX")
	if s.HighestUID != 150 {
		t.Errorf("HighestUID = %d, want 150", s.HighestUID)
	}

	// Unknown folder reads as nil
	missing, err := c.GetSyncState("Archive")
	if err != nil || missing != nil {
		t.Errorf("missing sync state = %+v, %v", missing, err)
	}
}

func TestCleanupOld(t *testing.T) {
	c := openTestCache(t)

	if err := c.StoreHeader("INBOX", header(1, "old")); err != nil {
		t.Fatal(err)
	}
	if err := c.StoreHeader("INBOX", header(2, "new")); err != nil {
		t.Fatal(err)
	}

	// Age the first row artificially
	old := time.Now().Unix() - 40*86400
	if _, err := c.db.Exec("UPDATE emails SET cached_at = ? WHERE uid = 1", old); err != nil {
		t.Fatal(err)
	}

	// P8: days == 0 is a no-op returning 0
	n, err := c.CleanupOld(0)
	if err != nil || n != 0 {
		t.Errorf("CleanupOld(0) = %d, %v", n, err)
	}

	n, err = c.CleanupOld(30)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupOld removed %d rows, want 1", n)
	}

	remaining, _ := c.Headers("INBOX", 0, 10)
	if len(remaining) != 1 || remaining[0].UID != 2 {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestUserOverrideSticky(t *testing.T) {
	c := openTestCache(t)

	if err := c.StoreHeader("INBOX", header(1, "msg")); err != nil {
		t.Fatal(err)
	}

	// P9: a user override survives later automatic categorization
	if err := c.SetEmailCategory("INBOX", 1, "personal", 1.0, true); err != nil {
		t.Fatalf("SetEmailCategory: %v", err)
	}
	if err := c.SetEmailCategory("INBOX", 1, "work", 0.9, false); err != nil {
		t.Fatalf("SetEmailCategory auto: %v", err)
	}

	got, err := c.EmailCategory("INBOX", 1)
	if err != nil || got != "personal" {
		t.Errorf("EmailCategory = %q, %v; want sticky personal", got, err)
	}

	// A later user choice does replace it
	if err := c.SetEmailCategory("INBOX", 1, "travel", 1.0, true); err != nil {
		t.Fatalf("SetEmailCategory user: %v", err)
	}
	got, _ = c.EmailCategory("INBOX", 1)
	if got != "travel" {
		t.Errorf("EmailCategory = %q, want travel", got)
	}
}

func TestCategoryCRUD(t *testing.T) {
	c := openTestCache(t)

	cats, err := c.Categories()
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != len(DefaultCategories()) {
		t.Errorf("seeded %d categories, want %d", len(cats), len(DefaultCategories()))
	}

	// Rereading returns the same seeded set, without duplicates
	cats2, _ := c.Categories()
	if len(cats2) != len(cats) {
		t.Errorf("category count changed on reread: %d", len(cats2))
	}

	created, err := c.CreateCategory("Receipts", "#123456", "receipt")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if created.IsSystem {
		t.Error("created category marked system")
	}

	if err := c.UpdateCategory(created.ID, "Invoices", "#654321", ""); err != nil {
		t.Errorf("UpdateCategory: %v", err)
	}

	// System categories are read-only
	if err := c.UpdateCategory("work", "X", "#000000", ""); err == nil {
		t.Error("expected error updating system category")
	}
	if err := c.DeleteCategory("work"); err == nil {
		t.Error("expected error deleting system category")
	}

	if err := c.DeleteCategory(created.ID); err != nil {
		t.Errorf("DeleteCategory: %v", err)
	}
}

func TestUncategorized(t *testing.T) {
	c := openTestCache(t)

	for uid := uint32(1); uid <= 3; uid++ {
		if err := c.StoreHeader("INBOX", header(uid, "m")); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.SetEmailCategory("INBOX", 2, "work", 0.9, false); err != nil {
		t.Fatal(err)
	}

	uids, err := c.Uncategorized("INBOX", 10)
	if err != nil {
		t.Fatalf("Uncategorized: %v", err)
	}
	if len(uids) != 2 {
		t.Fatalf("uids = %v", uids)
	}
	// Newest first
	if uids[0] != 3 || uids[1] != 1 {
		t.Errorf("uids = %v, want [3 1]", uids)
	}
}

func TestSearch(t *testing.T) {
	c := openTestCache(t)

	h := header(1, "Quarterly Report")
	if err := c.StoreHeader("INBOX", h); err != nil {
		t.Fatal(err)
	}
	if err := c.StoreEmailBody("INBOX", 1, "the budget figures", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.StoreHeader("Archive", header(2, "unrelated")); err != nil {
		t.Fatal(err)
	}

	for _, q := range []string{"quarterly", "BUDGET", "alice"} {
		got, err := c.Search(q)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(got) == 0 {
			t.Errorf("Search(%q) found nothing", q)
		}
	}

	got, _ := c.Search("no-such-string")
	if len(got) != 0 {
		t.Errorf("Search found %d rows, want 0", len(got))
	}
}

func TestStatsAndClear(t *testing.T) {
	c := openTestCache(t)

	email := &imap.Email{Header: *header(1, "sized")}
	email.BodyText = "0123456789"
	if err := c.StoreEmail("INBOX", email); err != nil {
		t.Fatal(err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EmailCount != 1 || stats.TotalSizeBytes == 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NewestEmail == "" {
		t.Error("missing newest email date")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, _ = c.GetStats()
	if stats.EmailCount != 0 {
		t.Errorf("emails remain after clear: %d", stats.EmailCount)
	}
}

func TestSpamScanMemoization(t *testing.T) {
	c := openTestCache(t)

	for uid := uint32(1); uid <= 4; uid++ {
		if err := c.StoreHeader("INBOX", header(uid, "m")); err != nil {
			t.Fatal(err)
		}
	}

	// Nothing scanned yet
	scan, err := c.GetSpamScan("INBOX", 1)
	if err != nil || scan != nil {
		t.Errorf("GetSpamScan = %+v, %v", scan, err)
	}

	if err := c.SetSpamScan("INBOX", 1, true, 0.95, "lottery scam"); err != nil {
		t.Fatal(err)
	}
	scan, err = c.GetSpamScan("INBOX", 1)
	if err != nil || scan == nil || !scan.IsSpam || scan.Reason != "lottery scam" {
		t.Errorf("GetSpamScan = %+v, %v", scan, err)
	}

	// Watermark pattern mirrors sync_state, including the clamp
	if err := c.SetSpamScanWatermark("INBOX", 2); err != nil {
		t.Fatal(err)
	}
	if err := c.SetSpamScanWatermark("INBOX", 1); err != nil {
		t.Fatal(err)
	}
	wm, err := c.SpamScanWatermark("INBOX")
	if err != nil || wm != 2 {
		t.Errorf("watermark = %d, %v; want 2", wm, err)
	}

	uids, err := c.UnscannedUIDs("INBOX", 10)
	if err != nil {
		t.Fatalf("UnscannedUIDs: %v", err)
	}
	if len(uids) != 2 || uids[0] != 3 || uids[1] != 4 {
		t.Errorf("unscanned = %v, want [3 4]", uids)
	}
}

func TestAttachmentData(t *testing.T) {
	c := openTestCache(t)

	email := &imap.Email{Header: *header(1, "att")}
	email.Attachments = append(email.Attachments, attachmentInfo("blob.bin"))
	if err := c.StoreEmail("INBOX", email); err != nil {
		t.Fatal(err)
	}

	data, err := c.AttachmentData("INBOX", 1, "blob.bin")
	if err != nil || data != nil {
		t.Errorf("data before store = %v, %v", data, err)
	}

	payload := []byte{1, 2, 3, 4}
	if err := c.StoreAttachmentData("INBOX", 1, "blob.bin", payload); err != nil {
		t.Fatalf("StoreAttachmentData: %v", err)
	}
	data, err = c.AttachmentData("INBOX", 1, "blob.bin")
	if err != nil || len(data) != 4 {
		t.Errorf("data = %v, %v", data, err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStoreAt(filepath.Join(t.TempDir(), "accounts.json"))
}

func TestLoadMissingFile(t *testing.T) {
	s := testStore(t)
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Accounts) != 0 {
		t.Errorf("accounts = %d", len(doc.Accounts))
	}
}

func TestSaveAccountUpsert(t *testing.T) {
	s := testStore(t)

	acc := Account{
		ID:          "user@example.com",
		Protocol:    ProtocolIMAP,
		DisplayName: "User",
		Username:    "user@example.com",
		IMAPHost:    "imap.example.com",
		IMAPPort:    993,
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
	}
	if err := s.SaveAccount(acc); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	// Upsert by id
	acc.DisplayName = "Renamed"
	if err := s.SaveAccount(acc); err != nil {
		t.Fatalf("SaveAccount update: %v", err)
	}

	accounts, err := s.Accounts()
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].DisplayName != "Renamed" {
		t.Errorf("accounts = %+v", accounts)
	}

	// Pretty-printed JSON on disk
	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("document is not pretty-printed")
	}

	// No temp file left behind
	if _, err := os.Stat(s.path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestPasswordOmittedWhenEmpty(t *testing.T) {
	s := testStore(t)

	if err := s.SaveAccount(Account{ID: "a", Protocol: ProtocolJMAP, Username: "a@b.c"}); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	data, _ := os.ReadFile(s.path)
	if strings.Contains(string(data), "password") {
		t.Error("empty password serialized")
	}
}

func TestDeleteAccount(t *testing.T) {
	s := testStore(t)

	s.SaveAccount(Account{ID: "one", Username: "one@x"})
	s.SaveAccount(Account{ID: "two", Username: "two@x"})

	if err := s.DeleteAccount("one"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	accounts, _ := s.Accounts()
	if len(accounts) != 1 || accounts[0].ID != "two" {
		t.Errorf("accounts = %+v", accounts)
	}

	// Deleting an unknown id is fine
	if err := s.DeleteAccount("ghost"); err != nil {
		t.Errorf("DeleteAccount(ghost): %v", err)
	}
}

func TestLegacyDocumentTolerated(t *testing.T) {
	s := testStore(t)

	// A legacy record without cache/signatures/vacation fields
	legacy := `{"accounts": [{"id": "old", "protocol": "imap", "username": "old@x", "imapHost": "h", "imapPort": 993}]}`
	if err := os.WriteFile(s.path, []byte(legacy), 0600); err != nil {
		t.Fatal(err)
	}

	accounts, err := s.Accounts()
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("accounts = %+v", accounts)
	}
	a := accounts[0]
	if a.Cache != nil || a.Signatures != nil || a.Vacation != nil {
		t.Errorf("optional fields should be zero: %+v", a)
	}
}

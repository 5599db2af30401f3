package account

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zitrone/mailengine/internal/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := config.NewStoreAt(filepath.Join(t.TempDir(), "accounts.json"))
	return NewRegistry(cfg, nil)
}

func TestAccountIDNamespace(t *testing.T) {
	imapAcc := config.Account{Protocol: config.ProtocolIMAP, Username: "user@example.com"}
	jmapAcc := config.Account{Protocol: config.ProtocolJMAP, Username: "user@example.com"}

	if got := AccountID(imapAcc); got != "user@example.com" {
		t.Errorf("IMAP AccountID = %q", got)
	}
	if got := AccountID(jmapAcc); got != "jmap_user@example.com" {
		t.Errorf("JMAP AccountID = %q", got)
	}
}

func TestAccountStatusEmpty(t *testing.T) {
	r := testRegistry(t)
	statuses := r.AccountStatus()
	if len(statuses) != 0 {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Dispatch(context.Background(), "no_such_command", nil)
	if err == nil || !strings.Contains(err.Error(), "no_such_command") {
		t.Errorf("err = %v", err)
	}
}

func TestDispatchUnknownAccount(t *testing.T) {
	r := testRegistry(t)
	args, _ := json.Marshal(map[string]any{"accountId": "ghost", "folder": "INBOX"})
	_, err := r.Dispatch(context.Background(), "fetch_headers", args)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("err = %v", err)
	}
}

func TestDispatchSavedAccounts(t *testing.T) {
	r := testRegistry(t)

	args, _ := json.Marshal(map[string]any{
		"account": map[string]any{
			"id":       "acc1",
			"protocol": "imap",
			"username": "user@example.com",
			"imapHost": "imap.example.com",
			"imapPort": 993,
		},
	})
	if _, err := r.Dispatch(context.Background(), "save_account", args); err != nil {
		t.Fatalf("save_account: %v", err)
	}

	result, err := r.Dispatch(context.Background(), "get_saved_accounts", nil)
	if err != nil {
		t.Fatalf("get_saved_accounts: %v", err)
	}
	accounts, ok := result.([]config.Account)
	if !ok || len(accounts) != 1 || accounts[0].ID != "acc1" {
		t.Errorf("result = %+v", result)
	}

	delArgs, _ := json.Marshal(map[string]any{"accountId": "acc1"})
	if _, err := r.Dispatch(context.Background(), "delete_saved_account", delArgs); err != nil {
		t.Fatalf("delete_saved_account: %v", err)
	}
	result, _ = r.Dispatch(context.Background(), "get_saved_accounts", nil)
	if accounts := result.([]config.Account); len(accounts) != 0 {
		t.Errorf("accounts after delete = %+v", accounts)
	}
}

func TestDispatchSyncCrypto(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	encArgs, _ := json.Marshal(map[string]any{"plaintext": "hello", "password": "pw"})
	encrypted, err := r.Dispatch(ctx, "sync_encrypt", encArgs)
	if err != nil {
		t.Fatalf("sync_encrypt: %v", err)
	}

	decArgs, _ := json.Marshal(map[string]any{"ciphertext": encrypted, "password": "pw"})
	decrypted, err := r.Dispatch(ctx, "sync_decrypt", decArgs)
	if err != nil {
		t.Fatalf("sync_decrypt: %v", err)
	}
	if decrypted != "hello" {
		t.Errorf("decrypted = %q", decrypted)
	}

	badArgs, _ := json.Marshal(map[string]any{"ciphertext": encrypted, "password": "wrong"})
	if _, err := r.Dispatch(ctx, "sync_decrypt", badArgs); err == nil {
		t.Error("expected decrypt failure with wrong password")
	}
}

func TestDispatchSieveSerialization(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	args, _ := json.Marshal(map[string]any{
		"rules": []map[string]any{{
			"id":      "rule_0",
			"name":    "VIP",
			"enabled": true,
			"conditions": []map[string]any{
				{"field": "from", "operator": "contains", "value": "boss@ex.com"},
			},
			"actions": []map[string]any{{"type": "fileinto", "value": "VIP"}},
		}},
	})

	result, err := r.Dispatch(ctx, "sieve_rules_to_script", args)
	if err != nil {
		t.Fatalf("sieve_rules_to_script: %v", err)
	}
	script, ok := result.(string)
	if !ok || !strings.Contains(script, "# Rule: VIP") {
		t.Errorf("script = %v", result)
	}

	parseArgs, _ := json.Marshal(map[string]any{"script": script})
	parsed, err := r.Dispatch(ctx, "sieve_parse_script", parseArgs)
	if err != nil {
		t.Fatalf("sieve_parse_script: %v", err)
	}
	if !strings.Contains(stringify(t, parsed), "VIP") {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestSaveAccountKeepsOptInPasswordWithoutKeyring(t *testing.T) {
	// With no credential store the opt-in field is the documented
	// fallback and must survive the save.
	r := testRegistry(t)

	acc := config.Account{ID: "a", Protocol: config.ProtocolIMAP, Username: "a@x", Password: "secret"}
	if err := r.SaveAccount(acc); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	accounts, err := r.config.Accounts()
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Password != "secret" {
		t.Errorf("accounts = %+v, want opt-in password kept", accounts)
	}

	if err := r.DeleteAccount("a"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	accounts, _ = r.config.Accounts()
	if len(accounts) != 0 {
		t.Errorf("accounts after delete = %+v", accounts)
	}
}

func TestDispatchDAVRequiresTarget(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	// Missing username / host fails before any wire traffic
	for _, command := range []string{"caldav_list_calendars", "carddav_list_contacts"} {
		if _, err := r.Dispatch(ctx, command, nil); err == nil {
			t.Errorf("%s without arguments should fail", command)
		}
	}

	args, _ := json.Marshal(map[string]any{"username": "user@example.com"})
	if _, err := r.Dispatch(ctx, "caldav_fetch_events", args); err == nil {
		t.Error("caldav_fetch_events without url or host should fail")
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := uniquePath(dir, "report.pdf")
	if filepath.Base(first) != "report.pdf" {
		t.Errorf("first = %q", first)
	}
	if err := os.WriteFile(first, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	second := uniquePath(dir, "report.pdf")
	if filepath.Base(second) != "report (1).pdf" {
		t.Errorf("second = %q", second)
	}
	if err := os.WriteFile(second, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	third := uniquePath(dir, "report.pdf")
	if filepath.Base(third) != "report (2).pdf" {
		t.Errorf("third = %q", third)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"", "attachment"},
		{"..", "attachment"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func stringify(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

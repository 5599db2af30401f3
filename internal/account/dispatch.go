package account

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zitrone/mailengine/internal/autoconfig"
	"github.com/zitrone/mailengine/internal/caldav"
	"github.com/zitrone/mailengine/internal/carddav"
	"github.com/zitrone/mailengine/internal/config"
	"github.com/zitrone/mailengine/internal/imap"
	"github.com/zitrone/mailengine/internal/sieve"
	"github.com/zitrone/mailengine/internal/smtp"
	"github.com/zitrone/mailengine/internal/synccrypto"
)

// commandArgs is the argument envelope shared by all commands. Each
// command reads the fields it needs; numeric UIDs address IMAP
// messages, opaque ids address JMAP messages.
type commandArgs struct {
	AccountID string          `json:"accountId,omitempty"`
	Account   *config.Account `json:"account,omitempty"`
	Password  string          `json:"password,omitempty"`

	Folder  string `json:"folder,omitempty"`
	Start   uint32 `json:"start,omitempty"`
	Count   uint32 `json:"count,omitempty"`
	Limit   uint32 `json:"limit,omitempty"`
	UID     uint32 `json:"uid,omitempty"`
	UIDs    []uint32 `json:"uids,omitempty"`
	ID      string   `json:"id,omitempty"`
	IDs     []string `json:"ids,omitempty"`
	Target  string   `json:"target,omitempty"`
	Name    string   `json:"name,omitempty"`
	NewName string   `json:"newName,omitempty"`
	Parent  string   `json:"parent,omitempty"`
	Query   string   `json:"query,omitempty"`

	PartID   string `json:"partId,omitempty"`
	BlobID   string `json:"blobId,omitempty"`
	Filename string `json:"filename,omitempty"`

	Flags []string `json:"flags,omitempty"`

	Message *smtp.ComposeMessage `json:"message,omitempty"`

	// Cache writes
	Headers  []*imap.Header `json:"headers,omitempty"`
	Email    *imap.Email    `json:"email,omitempty"`
	IsRead   bool           `json:"isRead,omitempty"`
	BodyText string         `json:"bodyText,omitempty"`
	BodyHTML string         `json:"bodyHtml,omitempty"`
	Days     uint32         `json:"days,omitempty"`

	// Categories
	CategoryID     string  `json:"categoryId,omitempty"`
	Color          string  `json:"color,omitempty"`
	Icon           string  `json:"icon,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	IsUserOverride bool    `json:"isUserOverride,omitempty"`

	// Sieve (ManageSieve deployment)
	Host     string       `json:"host,omitempty"`
	Port     int          `json:"port,omitempty"`
	Username string       `json:"username,omitempty"`
	Script   string       `json:"script,omitempty"`
	Content  string       `json:"content,omitempty"`
	Rules    []sieve.Rule `json:"rules,omitempty"`
	Activate bool         `json:"activate,omitempty"`

	// Spam scan writes
	IsSpam bool   `json:"isSpam,omitempty"`
	Reason string `json:"reason,omitempty"`

	// DAV (CalDAV/CardDAV deployments)
	URL        string           `json:"url,omitempty"`
	CalendarID string           `json:"calendarId,omitempty"`
	EventID    string           `json:"eventId,omitempty"`
	RangeStart string           `json:"rangeStart,omitempty"`
	RangeEnd   string           `json:"rangeEnd,omitempty"`
	Event      *caldav.Event    `json:"event,omitempty"`
	ContactID  string           `json:"contactId,omitempty"`
	Contact    *carddav.Contact `json:"contact,omitempty"`

	// Autoconfig and sync crypto
	Address    string `json:"address,omitempty"`
	Plaintext  string `json:"plaintext,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

// Dispatch executes a named command against the registry. Success
// returns a typed payload; failures surface as errors whose text the
// hosting process forwards verbatim.
func (r *Registry) Dispatch(ctx context.Context, command string, rawArgs json.RawMessage) (any, error) {
	var args commandArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("malformed arguments for %s: %w", command, err)
		}
	}

	switch command {

	// --- session lifecycle ---

	case "connect":
		if args.Account == nil {
			return nil, fmt.Errorf("connect requires an account record")
		}
		return r.Connect(ctx, *args.Account, args.Password)

	case "disconnect":
		r.Disconnect(args.AccountID)
		return "ok", nil

	case "disconnect_all":
		r.DisconnectAll()
		return "ok", nil

	case "account_status":
		return r.AccountStatus(), nil

	// --- folders ---

	case "list_folders", "list_mailboxes":
		return r.ListFolders(ctx, args.AccountID)

	case "select_folder":
		total, unseen, err := r.SelectFolder(ctx, args.AccountID, args.Folder)
		if err != nil {
			return nil, err
		}
		return map[string]uint32{"total": total, "unseen": unseen}, nil

	case "create_folder":
		return r.CreateFolder(ctx, args.AccountID, args.Name, args.Parent)

	case "delete_folder":
		return "ok", r.DeleteFolder(ctx, args.AccountID, args.Folder)

	case "rename_folder":
		return "ok", r.RenameFolder(ctx, args.AccountID, args.Folder, args.NewName)

	// --- messages ---

	case "fetch_headers":
		return r.FetchHeaders(ctx, args.AccountID, args.Folder, args.Start, args.Count)

	case "fetch_email":
		return r.FetchEmail(ctx, args.AccountID, args.Folder, args.UID, args.ID)

	case "mark_read":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs, "read", true)

	case "mark_unread":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs, "read", false)

	case "mark_flagged":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs, "flagged", true)

	case "mark_unflagged":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs, "flagged", false)

	case "add_flags", "bulk_add_flags":
		return "ok", r.ModifyFlags(ctx, args.AccountID, args.Folder, imapUIDs(args.UID, args.UIDs), jmapIDs(args.ID, args.IDs), args.Flags, true)

	case "remove_flags", "bulk_remove_flags":
		return "ok", r.ModifyFlags(ctx, args.AccountID, args.Folder, imapUIDs(args.UID, args.UIDs), jmapIDs(args.ID, args.IDs), args.Flags, false)

	case "bulk_mark_read":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, 0, args.UIDs, "", args.IDs, "read", true)

	case "bulk_mark_unread":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, 0, args.UIDs, "", args.IDs, "read", false)

	case "bulk_mark_flagged":
		return "ok", r.SetFlag(ctx, args.AccountID, args.Folder, 0, args.UIDs, "", args.IDs, "flagged", true)

	case "delete_email", "bulk_delete":
		return "ok", r.Delete(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs)

	case "move_email", "bulk_move":
		return "ok", r.Move(ctx, args.AccountID, args.Folder, args.UID, args.UIDs, args.ID, args.IDs, args.Target)

	case "search":
		return r.Search(ctx, args.AccountID, args.Folder, args.Query)

	case "download_attachment":
		return r.DownloadAttachment(ctx, args.AccountID, args.Folder, args.UID, args.PartID, args.BlobID, args.Filename)

	case "send_email":
		if args.Message == nil {
			return nil, fmt.Errorf("send_email requires a message")
		}
		return "ok", r.Send(ctx, args.AccountID, args.Message)

	// --- cache ---

	case "get_cached_headers":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.Headers(args.Folder, args.Start, args.Count)

	case "get_cached_email":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.Email(args.Folder, args.UID)

	case "cache_headers":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.StoreHeaders(args.Folder, args.Headers)

	case "cache_email":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		if args.Email == nil {
			return nil, fmt.Errorf("cache_email requires an email")
		}
		return "ok", c.StoreEmail(args.Folder, args.Email)

	case "cache_email_body":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.StoreEmailBody(args.Folder, args.UID, args.BodyText, args.BodyHTML)

	case "update_cache_read_status":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.UpdateReadStatus(args.Folder, args.UID, args.IsRead)

	case "delete_cached_email":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.DeleteEmail(args.Folder, args.UID)

	case "search_cache":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.Search(args.Query)

	case "cache_stats":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.GetStats()

	case "clear_cache":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.Clear()

	case "cleanup_cache":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.CleanupOld(args.Days)

	case "get_sync_state":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.GetSyncState(args.Folder)

	case "set_sync_state":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.SetSyncState(args.Folder, args.UID)

	case "has_cached_body":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.HasBody(args.Folder, args.UID)

	// --- categories ---

	case "list_categories":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.Categories()

	case "create_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.CreateCategory(args.Name, args.Color, args.Icon)

	case "update_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.UpdateCategory(args.CategoryID, args.Name, args.Color, args.Icon)

	case "delete_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.DeleteCategory(args.CategoryID)

	case "set_email_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.SetEmailCategory(args.Folder, args.UID, args.CategoryID, args.Confidence, args.IsUserOverride)

	case "get_email_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.EmailCategory(args.Folder, args.UID)

	case "get_uncategorized":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.Uncategorized(args.Folder, args.Limit)

	case "get_emails_by_category":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.EmailsByCategory(args.CategoryID)

	case "get_category_counts":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.CategoryCounts(args.Folder)

	// --- spam ---

	case "get_spam_scan":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return c.GetSpamScan(args.Folder, args.UID)

	case "set_spam_scan":
		c, err := r.Cache(args.AccountID)
		if err != nil {
			return nil, err
		}
		return "ok", c.SetSpamScan(args.Folder, args.UID, args.IsSpam, args.Confidence, args.Reason)

	// --- AI operations (categorization, spam scan, summaries) ---

	case "categorize_folder":
		return r.CategorizeFolder(ctx, args.AccountID, args.Folder, args.Limit)

	case "spam_scan_folder":
		return r.ScanSpamFolder(ctx, args.AccountID, args.Folder, args.Limit)

	case "summarize_email":
		return r.SummarizeEmail(ctx, args.AccountID, args.Folder, args.UID)

	case "extract_deadlines":
		return r.ExtractDeadlines(ctx, args.AccountID, args.Folder, args.UID)

	// --- sieve (ManageSieve deployment) ---

	case "sieve_list_scripts":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return c.ListScripts()
		})

	case "sieve_get_script":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return c.GetScript(args.Name)
		})

	case "sieve_put_script":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return "ok", c.PutScript(args.Name, args.Content)
		})

	case "sieve_set_active":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return "ok", c.SetActive(args.Name)
		})

	case "sieve_delete_script":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return "ok", c.DeleteScript(args.Name)
		})

	case "sieve_get_rules":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			script, err := c.GetScript(args.Name)
			if err != nil {
				return nil, err
			}
			return sieve.ParseScript(script), nil
		})

	case "sieve_save_rules":
		return r.withSieve(ctx, args, func(c *sieve.Client) (any, error) {
			return "ok", c.PutScript(args.Name, sieve.RulesToScript(args.Rules))
		})

	case "sieve_rules_to_script":
		// Pure serialization, no wire traffic
		return sieve.RulesToScript(args.Rules), nil

	case "sieve_parse_script":
		return sieve.ParseScript(args.Script), nil

	// --- CalDAV / CardDAV ---

	case "caldav_list_calendars":
		return r.ListCalendars(ctx, args)

	case "caldav_fetch_events":
		return r.FetchEvents(ctx, args)

	case "caldav_fetch_tasks":
		return r.FetchTasks(ctx, args)

	case "caldav_create_event":
		return r.CreateEvent(ctx, args)

	case "caldav_update_event":
		return "ok", r.UpdateEvent(ctx, args)

	case "caldav_delete_event":
		return "ok", r.DeleteEvent(ctx, args)

	case "carddav_list_contacts":
		return r.ListContacts(ctx, args)

	case "carddav_save_contact":
		return r.SaveContact(ctx, args)

	case "carddav_delete_contact":
		return "ok", r.DeleteContact(ctx, args)

	// --- autoconfig ---

	case "lookup_autoconfig":
		return autoconfig.NewResolver().Lookup(args.Address)

	case "discover_jmap":
		return autoconfig.NewResolver().DiscoverJMAP(args.Address)

	// --- persisted accounts ---

	case "get_saved_accounts":
		return r.config.Accounts()

	case "save_account":
		if args.Account == nil {
			return nil, fmt.Errorf("save_account requires an account record")
		}
		return "ok", r.SaveAccount(*args.Account)

	case "delete_saved_account":
		return "ok", r.DeleteAccount(args.AccountID)

	case "store_credential":
		if args.Account == nil {
			return nil, fmt.Errorf("store_credential requires an account record")
		}
		return "ok", r.StoreCredential(*args.Account, args.Password)

	// --- sync crypto ---

	case "sync_encrypt":
		return synccrypto.Encrypt(args.Plaintext, args.Password)

	case "sync_decrypt":
		return synccrypto.Decrypt(args.Ciphertext, args.Password)

	case "sync_generate_key":
		return synccrypto.GenerateKey(args.Password, args.Address), nil

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// withSieve dials a ManageSieve session for one command. ManageSieve is
// connectionful but short-lived; each command runs its own session.
func (r *Registry) withSieve(ctx context.Context, args commandArgs, fn func(*sieve.Client) (any, error)) (any, error) {
	if args.Host == "" {
		return nil, fmt.Errorf("sieve commands require a host")
	}
	port := args.Port
	if port == 0 {
		port = 4190
	}

	client := sieve.NewClient(args.Host, port, true)
	if err := client.Connect(ctx, args.Username, args.Password); err != nil {
		return nil, err
	}
	defer client.Close()

	return fn(client)
}

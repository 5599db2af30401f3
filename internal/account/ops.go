package account

import (
	"context"
	"fmt"

	"github.com/zitrone/mailengine/internal/cache"
	"github.com/zitrone/mailengine/internal/jmap"
	"github.com/zitrone/mailengine/internal/smtp"
)

// The operations below route a uniform command onto whichever protocol
// session the account id resolves to. IMAP messages are addressed by
// numeric UID within a folder; JMAP messages by opaque id. The command
// surface carries both shapes and each branch uses its own.

// isJMAP reports which map holds the account
func (r *Registry) isJMAP(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jmapSessions[accountID]
	return ok
}

// Folder is the protocol-neutral folder/mailbox projection
type Folder struct {
	ID        string `json:"id"`   // IMAP name or JMAP mailbox id
	Name      string `json:"name"` // decoded display name
	Role      string `json:"role,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	ParentID  string `json:"parentId,omitempty"`
	Total     uint32 `json:"total"`
	Unread    uint32 `json:"unread"`
}

// ListFolders lists folders/mailboxes for the account
func (r *Registry) ListFolders(ctx context.Context, accountID string) ([]Folder, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return nil, err
		}
		mailboxes, err := s.client.ListMailboxes(ctx)
		if err != nil {
			return nil, err
		}
		folders := make([]Folder, 0, len(mailboxes))
		for _, m := range mailboxes {
			folders = append(folders, Folder{
				ID:       m.ID,
				Name:     m.Name,
				Role:     m.Role,
				ParentID: m.ParentID,
				Total:    m.TotalEmails,
				Unread:   m.UnreadEmails,
			})
		}
		return folders, nil
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return nil, err
	}
	imapFolders, err := s.client.ListFolders()
	if err != nil {
		r.dropIfDead(accountID)
		return nil, err
	}
	folders := make([]Folder, 0, len(imapFolders))
	for _, f := range imapFolders {
		folders = append(folders, Folder{
			ID:        f.Name,
			Name:      f.Name,
			Role:      string(f.Type),
			Delimiter: f.Delimiter,
			Total:     f.Total,
			Unread:    f.Unseen,
		})
	}
	return folders, nil
}

// SelectFolder selects an IMAP folder, returning (total, unseen).
// JMAP has no selection state.
func (r *Registry) SelectFolder(ctx context.Context, accountID, folder string) (uint32, uint32, error) {
	if r.isJMAP(accountID) {
		return 0, 0, fmt.Errorf("select_folder applies to IMAP accounts only")
	}
	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return 0, 0, err
	}
	f, err := s.client.Select(folder)
	if err != nil {
		r.dropIfDead(accountID)
		return 0, 0, err
	}
	status, err := s.client.Status(folder)
	if err != nil {
		return f.Total, 0, nil
	}
	return f.Total, status.Unseen, nil
}

// FetchHeaders fetches message summaries, newest first, caching them
// when the account caches headers.
func (r *Registry) FetchHeaders(ctx context.Context, accountID, folder string, start, count uint32) (any, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return nil, err
		}
		return s.client.FetchHeaders(ctx, folder, start, count)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return nil, err
	}
	headers, err := s.client.FetchHeaders(folder, start, count)
	if err != nil {
		r.dropIfDead(accountID)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.StoreHeaders(folder, headers); err != nil {
			r.log.Warn().Err(err).Msg("Failed to cache headers")
		}
		if len(headers) > 0 {
			highest := headers[0].UID
			for _, h := range headers {
				if h.UID > highest {
					highest = h.UID
				}
			}
			if err := s.cache.SetSyncState(folder, highest); err != nil {
				r.log.Warn().Err(err).Msg("Failed to advance sync watermark")
			}
		}
	}

	return headers, nil
}

// FetchEmail fetches a full message, consulting the cache first for
// IMAP accounts and writing bodies back per cache policy.
func (r *Registry) FetchEmail(ctx context.Context, accountID, folder string, uid uint32, id string) (any, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return nil, err
		}
		return s.client.FetchEmail(ctx, id)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.Email(folder, uid); err == nil && cached != nil && cached.BodyText != "" {
			return cached, nil
		}
	}

	email, err := s.client.FetchEmail(folder, uid)
	if err != nil {
		r.dropIfDead(accountID)
		return nil, err
	}

	if s.cache != nil && s.account.Cache.CacheBodies {
		if err := s.cache.StoreEmail(folder, email); err != nil {
			r.log.Warn().Err(err).Msg("Failed to cache email body")
		}
	}

	return email, nil
}

// imapUIDs normalizes a single-or-bulk uid argument
func imapUIDs(uid uint32, uids []uint32) []uint32 {
	if len(uids) > 0 {
		return uids
	}
	if uid > 0 {
		return []uint32{uid}
	}
	return nil
}

func jmapIDs(id string, ids []string) []string {
	if len(ids) > 0 {
		return ids
	}
	if id != "" {
		return []string{id}
	}
	return nil
}

// SetFlag drives the read/flagged markers on either protocol
func (r *Registry) SetFlag(ctx context.Context, accountID, folder string, uid uint32, uids []uint32, id string, ids []string, flag string, value bool) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		var keyword string
		switch flag {
		case "read":
			keyword = jmap.KeywordSeen
		case "flagged":
			keyword = jmap.KeywordFlagged
		default:
			keyword = flag
		}
		return s.client.SetKeyword(ctx, jmapIDs(id, ids), keyword, value)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	targets := imapUIDs(uid, uids)

	switch flag {
	case "read":
		err = s.client.MarkRead(folder, targets, value)
	case "flagged":
		err = s.client.MarkFlagged(folder, targets, value)
	default:
		if value {
			err = s.client.AddFlags(folder, targets, []string{flag})
		} else {
			err = s.client.RemoveFlags(folder, targets, []string{flag})
		}
	}
	if err != nil {
		r.dropIfDead(accountID)
		return err
	}

	if flag == "read" && s.cache != nil {
		for _, u := range targets {
			if err := s.cache.UpdateReadStatus(folder, u, value); err != nil {
				r.log.Warn().Err(err).Msg("Failed to update cached read status")
			}
		}
	}
	return nil
}

// ModifyFlags adds or removes free-form flags (IMAP) or keywords (JMAP)
func (r *Registry) ModifyFlags(ctx context.Context, accountID, folder string, uids []uint32, ids []string, flags []string, add bool) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		for _, kw := range flags {
			if err := s.client.SetKeyword(ctx, ids, kw, add); err != nil {
				return err
			}
		}
		return nil
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	if add {
		err = s.client.AddFlags(folder, uids, flags)
	} else {
		err = s.client.RemoveFlags(folder, uids, flags)
	}
	if err != nil {
		r.dropIfDead(accountID)
	}
	return err
}

// Delete removes messages permanently on either protocol
func (r *Registry) Delete(ctx context.Context, accountID, folder string, uid uint32, uids []uint32, id string, ids []string) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		return s.client.Delete(ctx, jmapIDs(id, ids))
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	targets := imapUIDs(uid, uids)
	if err := s.client.Delete(folder, targets); err != nil {
		r.dropIfDead(accountID)
		return err
	}

	if s.cache != nil {
		for _, u := range targets {
			if err := s.cache.DeleteEmail(folder, u); err != nil {
				r.log.Warn().Err(err).Msg("Failed to delete cached email")
			}
		}
	}
	return nil
}

// Move re-homes messages into another folder/mailbox
func (r *Registry) Move(ctx context.Context, accountID, folder string, uid uint32, uids []uint32, id string, ids []string, target string) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		return s.client.Move(ctx, jmapIDs(id, ids), target)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	targets := imapUIDs(uid, uids)
	if err := s.client.Move(folder, targets, target); err != nil {
		r.dropIfDead(accountID)
		return err
	}

	// The destination assigns fresh UIDs; cached rows under the old
	// (folder, uid) address are stale either way.
	if s.cache != nil {
		for _, u := range targets {
			if err := s.cache.DeleteEmail(folder, u); err != nil {
				r.log.Warn().Err(err).Msg("Failed to evict moved email from cache")
			}
		}
	}
	return nil
}

// CreateFolder creates a folder/mailbox
func (r *Registry) CreateFolder(ctx context.Context, accountID, name, parentID string) (string, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return "", err
		}
		return s.client.CreateMailbox(ctx, name, parentID)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return "", err
	}
	if err := s.client.CreateFolder(name); err != nil {
		r.dropIfDead(accountID)
		return "", err
	}
	return name, nil
}

// DeleteFolder removes a folder/mailbox
func (r *Registry) DeleteFolder(ctx context.Context, accountID, folder string) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		return s.client.DeleteMailbox(ctx, folder)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteFolder(folder); err != nil {
		r.dropIfDead(accountID)
		return err
	}
	return nil
}

// RenameFolder renames a folder/mailbox
func (r *Registry) RenameFolder(ctx context.Context, accountID, folder, newName string) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		return s.client.RenameMailbox(ctx, folder, newName)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}
	if err := s.client.RenameFolder(folder, newName); err != nil {
		r.dropIfDead(accountID)
		return err
	}
	return nil
}

// Search forwards a query to the server
func (r *Registry) Search(ctx context.Context, accountID, folder, query string) (any, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return nil, err
		}
		return s.client.Search(ctx, query, folder)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return nil, err
	}
	uids, err := s.client.SearchUIDs(folder, query)
	if err != nil {
		r.dropIfDead(accountID)
		return nil, err
	}
	return uids, nil
}

// Send submits a message. For IMAP accounts the SMTP send happens
// without the registry lock; the post-send APPEND to the Sent folder
// re-borrows the IMAP session. Append failure is logged, not fatal.
func (r *Registry) Send(ctx context.Context, accountID string, msg *smtp.ComposeMessage) error {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return err
		}
		if err := msg.Validate(); err != nil {
			return err
		}
		raw, err := msg.ToRFC822()
		if err != nil {
			return err
		}
		_, err = s.client.Send(ctx, raw)
		return err
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return err
	}

	password, err := r.resolvePassword(s.account)
	if err != nil {
		return err
	}

	raw, err := s.smtpClient(password).Send(msg)
	if err != nil {
		return err
	}

	// Re-borrow for the append; the session may have been dropped
	// while the send was in flight.
	s, err = r.borrowIMAP(accountID)
	if err != nil {
		r.log.Warn().Err(err).Msg("Sent but could not append to Sent folder")
		return nil
	}
	if err := s.client.AppendToSent(raw); err != nil {
		r.log.Warn().Err(err).Msg("Sent but append to Sent folder failed")
	}

	return nil
}

// FetchAttachment retrieves attachment bytes by part path (IMAP) or
// blob id (JMAP).
func (r *Registry) FetchAttachment(ctx context.Context, accountID, folder string, uid uint32, partID, blobID, name string) ([]byte, error) {
	if r.isJMAP(accountID) {
		s, err := r.borrowJMAP(accountID)
		if err != nil {
			return nil, err
		}
		return s.client.DownloadBlob(ctx, blobID, name)
	}

	s, err := r.borrowIMAP(accountID)
	if err != nil {
		return nil, err
	}
	data, err := s.client.FetchAttachment(folder, uid, partID)
	if err != nil {
		r.dropIfDead(accountID)
		return nil, err
	}

	if s.cache != nil && s.account.Cache.CacheAttachments && name != "" {
		if err := s.cache.StoreAttachmentData(folder, uid, name, data); err != nil {
			r.log.Warn().Err(err).Msg("Failed to cache attachment data")
		}
	}
	return data, nil
}

// Cache returns the cache pinned by a connected account, or an error
// when the account is unknown or caching is disabled.
func (r *Registry) Cache(accountID string) (*cache.Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.imapSessions[accountID]; ok && s.cache != nil {
		return s.cache, nil
	}
	if s, ok := r.jmapSessions[accountID]; ok && s.cache != nil {
		return s.cache, nil
	}
	return nil, fmt.Errorf("no cache for account %q (not connected or caching disabled)", accountID)
}

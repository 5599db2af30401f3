package imap

import (
	"strings"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/zitrone/mailengine/internal/codec"
)

// Folder represents an IMAP mailbox. Name is the decoded UTF-8 form
// shown to users; WireName is the Modified UTF-7 form used on the wire.
type Folder struct {
	Name       string   `json:"name"`
	WireName   string   `json:"wireName"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes"`
	Type       FolderType `json:"type"`

	// Status info (populated by Select or Status)
	UIDValidity uint32 `json:"uidValidity"`
	UIDNext     uint32 `json:"uidNext"`
	Total       uint32 `json:"total"`
	Unseen      uint32 `json:"unseen"`
}

// FolderType classifies a folder by RFC 6154 special-use attribute or
// name heuristics.
type FolderType string

const (
	FolderTypeInbox   FolderType = "inbox"
	FolderTypeSent    FolderType = "sent"
	FolderTypeDrafts  FolderType = "drafts"
	FolderTypeTrash   FolderType = "trash"
	FolderTypeSpam    FolderType = "spam"
	FolderTypeArchive FolderType = "archive"
	FolderTypeStarred FolderType = "starred"
	FolderTypeFolder  FolderType = "folder"
)

// Header is the envelope summary of a message within a folder,
// addressed by its server-assigned UID.
type Header struct {
	UID            uint32   `json:"uid"`
	Subject        string   `json:"subject"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Date           string   `json:"date"`
	IsRead         bool     `json:"isRead"`
	IsFlagged      bool     `json:"isFlagged"`
	IsAnswered     bool     `json:"isAnswered"`
	IsDraft        bool     `json:"isDraft"`
	Flags          []string `json:"flags"`
	HasAttachments bool     `json:"hasAttachments"`
}

// Email is a fully fetched message: header fields plus decoded bodies
// and attachment descriptors.
type Email struct {
	Header
	Cc          string                 `json:"cc"`
	Bcc         string                 `json:"bcc"`
	BodyText    string                 `json:"bodyText"`
	BodyHTML    string                 `json:"bodyHtml"`
	Attachments []codec.AttachmentInfo `json:"attachments"`
}

// determineFolderType determines the folder type from RFC 6154
// special-use attributes, falling back to name matching.
func determineFolderType(name string, attrs []goimap.MailboxAttr) FolderType {
	for _, attr := range attrs {
		switch attr {
		case goimap.MailboxAttrArchive:
			return FolderTypeArchive
		case goimap.MailboxAttrDrafts:
			return FolderTypeDrafts
		case goimap.MailboxAttrJunk:
			return FolderTypeSpam
		case goimap.MailboxAttrSent:
			return FolderTypeSent
		case goimap.MailboxAttrTrash:
			return FolderTypeTrash
		case goimap.MailboxAttrFlagged:
			return FolderTypeStarred
		}
	}

	lower := strings.ToLower(name)
	switch {
	case name == "INBOX":
		return FolderTypeInbox
	case strings.Contains(lower, "sent") || strings.Contains(lower, "gesendet"):
		return FolderTypeSent
	case strings.Contains(lower, "draft") || strings.Contains(lower, "entwürfe"):
		return FolderTypeDrafts
	case strings.Contains(lower, "trash") || strings.Contains(lower, "deleted") || strings.Contains(lower, "papierkorb"):
		return FolderTypeTrash
	case strings.Contains(lower, "spam") || strings.Contains(lower, "junk"):
		return FolderTypeSpam
	case strings.Contains(lower, "archive"):
		return FolderTypeArchive
	case strings.Contains(lower, "starred") || strings.Contains(lower, "flagged"):
		return FolderTypeStarred
	}

	return FolderTypeFolder
}

// hasSpecialUseAttr checks for any RFC 6154 SPECIAL-USE attribute
func hasSpecialUseAttr(attrs []string) bool {
	for _, attr := range attrs {
		switch goimap.MailboxAttr(attr) {
		case goimap.MailboxAttrAll, goimap.MailboxAttrArchive, goimap.MailboxAttrDrafts,
			goimap.MailboxAttrJunk, goimap.MailboxAttrSent, goimap.MailboxAttrTrash,
			goimap.MailboxAttrFlagged:
			return true
		}
	}
	return false
}

// flagsFromIMAP maps wire flags onto the boolean flag slots and the
// free-form flag list.
func flagsFromIMAP(flags []goimap.Flag) (isRead, isFlagged, isAnswered, isDraft bool, list []string) {
	for _, f := range flags {
		switch f {
		case goimap.FlagSeen:
			isRead = true
		case goimap.FlagFlagged:
			isFlagged = true
		case goimap.FlagAnswered:
			isAnswered = true
		case goimap.FlagDraft:
			isDraft = true
		}
		list = append(list, string(f))
	}
	return
}

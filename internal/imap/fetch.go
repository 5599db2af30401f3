package imap

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/zitrone/mailengine/internal/codec"
)

// pageRange maps a newest-first (start, count) window onto a 1-based
// sequence-number range [begin, end]. With N messages the window is
// [N-start-count+1 .. N-start] clamped to [1, N]; ok is false when the
// window falls entirely off the mailbox.
func pageRange(total, start, count uint32) (begin, end uint32, ok bool) {
	if total == 0 || start >= total || count == 0 {
		return 0, 0, false
	}
	end = total - start
	if end < 1 {
		return 0, 0, false
	}
	if count >= end {
		begin = 1
	} else {
		begin = end - count + 1
	}
	return begin, end, true
}

var headerFetchOptions = &goimap.FetchOptions{
	UID:           true,
	Flags:         true,
	Envelope:      true,
	BodyStructure: &goimap.FetchItemBodyStructure{},
}

// FetchHeaders fetches message headers with newest-first pagination:
// start is the offset from the newest message, count the page size.
func (c *Client) FetchHeaders(folder string, start, count uint32) ([]*Header, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	f, err := c.ensureSelected(folder)
	if err != nil {
		return nil, err
	}

	begin, end, ok := pageRange(f.Total, start, count)
	if !ok {
		return nil, nil
	}

	seqSet := goimap.SeqSet{}
	seqSet.AddRange(begin, end)

	msgs, err := c.client.Fetch(seqSet, headerFetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headers: %w", err)
	}

	headers := make([]*Header, 0, len(msgs))
	for _, msg := range msgs {
		headers = append(headers, headerFromMessage(msg))
	}

	// Newest first
	sort.Slice(headers, func(i, j int) bool { return headers[i].UID > headers[j].UID })

	c.log.Debug().
		Str("folder", folder).
		Uint32("start", start).
		Uint32("count", count).
		Int("returned", len(headers)).
		Msg("Fetched headers")

	return headers, nil
}

func headerFromMessage(msg *imapclient.FetchMessageBuffer) *Header {
	h := &Header{UID: uint32(msg.UID)}
	h.IsRead, h.IsFlagged, h.IsAnswered, h.IsDraft, h.Flags = flagsFromIMAP(msg.Flags)

	if env := msg.Envelope; env != nil {
		h.Subject = env.Subject
		if len(env.From) > 0 {
			h.From = formatAddress(env.From[0])
		}
		if len(env.To) > 0 {
			h.To = formatAddress(env.To[0])
		}
		if !env.Date.IsZero() {
			h.Date = env.Date.Format(time.RFC1123Z)
		}
	}

	// BODYSTRUCTURE is requested but attachment presence is only
	// learned from a full body fetch; headers report false here.
	return h
}

func formatAddress(addr goimap.Address) string {
	email := addr.Addr()
	name := codec.DecodeWord(addr.Name)
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func formatAddressList(addrs []goimap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, formatAddress(a))
	}
	return strings.Join(parts, ", ")
}

// FetchEmail fetches a single message body by UID and parses its MIME
// structure locally.
func (c *Client) FetchEmail(folder string, uid uint32) (*Email, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return nil, err
	}

	bodySection := &goimap.FetchItemBodySection{}
	options := &goimap.FetchOptions{
		UID:           true,
		Flags:         true,
		Envelope:      true,
		BodyStructure: &goimap.FetchItemBodyStructure{},
		BodySection:   []*goimap.FetchItemBodySection{bodySection},
	}

	msgs, err := c.client.Fetch(uidSet([]uint32{uid}), options).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d not found in %q", uid, folder)
	}
	msg := msgs[0]

	email := &Email{Header: *headerFromMessage(msg)}
	email.UID = uid

	if env := msg.Envelope; env != nil {
		email.Cc = formatAddressList(env.Cc)
		email.Bcc = formatAddressList(env.Bcc)
		email.To = formatAddressList(env.To)
	}

	raw := msg.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("server returned no body for message %d", uid)
	}

	body := codec.ExtractBody(raw)
	email.BodyText = body.Text
	email.BodyHTML = body.HTML
	email.HasAttachments = body.HasAttachments
	email.Attachments = body.Attachments

	return email, nil
}

// FetchAttachment fetches a single MIME part by its dotted part path.
// If the returned bytes are base64-shaped they are decoded; otherwise
// they are returned verbatim. The part's Content-Transfer-Encoding is
// informational only.
func (c *Client) FetchAttachment(folder string, uid uint32, partID string) ([]byte, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return nil, err
	}

	part, err := parsePartPath(partID)
	if err != nil {
		return nil, err
	}

	bodySection := &goimap.FetchItemBodySection{Part: part}
	options := &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	}

	msgs, err := c.client.Fetch(uidSet([]uint32{uid}), options).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d not found in %q", uid, folder)
	}

	data := msgs[0].FindBodySection(bodySection)
	if data == nil {
		return nil, fmt.Errorf("no data for part %s of message %d", partID, uid)
	}

	return maybeDecodeBase64(data), nil
}

func parsePartPath(partID string) ([]int, error) {
	var part []int
	for _, seg := range strings.Split(partID, ".") {
		n := 0
		if seg == "" {
			return nil, fmt.Errorf("invalid part path %q", partID)
		}
		for _, ch := range seg {
			if ch < '0' || ch > '9' {
				return nil, fmt.Errorf("invalid part path %q", partID)
			}
			n = n*10 + int(ch-'0')
		}
		part = append(part, n)
	}
	return part, nil
}

// maybeDecodeBase64 decodes data when it looks like a base64 payload
// after stripping CR/LF, and returns it verbatim otherwise.
func maybeDecodeBase64(data []byte) []byte {
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\r' || b == '\n' {
			continue
		}
		if !isBase64Byte(b) {
			return data
		}
		cleaned = append(cleaned, b)
	}
	if len(cleaned) == 0 || len(cleaned)%4 != 0 {
		return data
	}

	decoded, err := base64.StdEncoding.DecodeString(string(cleaned))
	if err != nil {
		return data
	}
	return decoded
}

func isBase64Byte(b byte) bool {
	return b >= 'A' && b <= 'Z' ||
		b >= 'a' && b <= 'z' ||
		b >= '0' && b <= '9' ||
		b == '+' || b == '/' || b == '='
}

// SearchUIDs forwards a query string to the server as a UID SEARCH over
// subject/from/body and returns matching UIDs, newest first.
func (c *Client) SearchUIDs(folder, query string) ([]uint32, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return nil, err
	}

	criteria := &goimap.SearchCriteria{
		Or: [][2]goimap.SearchCriteria{
			{
				{Header: []goimap.SearchCriteriaHeaderField{{Key: "Subject", Value: query}}},
				{Or: [][2]goimap.SearchCriteria{
					{
						{Header: []goimap.SearchCriteriaHeaderField{{Key: "From", Value: query}}},
						{Body: []string{query}},
					},
				}},
			},
		},
	}

	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	raw := data.AllUIDs()
	uids := make([]uint32, 0, len(raw))
	for _, u := range raw {
		uids = append(uids, uint32(u))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	return uids, nil
}

package jmap

import (
	"context"
	"encoding/json"
	"fmt"
)

var headerProperties = []string{
	"id", "blobId", "threadId", "mailboxIds", "subject", "from", "to",
	"receivedAt", "keywords", "hasAttachment", "size", "preview",
}

var emailProperties = []string{
	"id", "blobId", "threadId", "mailboxIds", "subject", "from", "to",
	"cc", "bcc", "receivedAt", "keywords", "size", "textBody",
	"htmlBody", "attachments", "bodyValues",
}

// queryAndGet batches Email/query with a back-referenced Email/get in a
// single POST.
func (c *Client) queryAndGet(ctx context.Context, filter map[string]any, position, limit uint32, properties []string, fetchBodies bool) ([]Result, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	queryID := c.nextCallID()
	queryArgs := map[string]any{
		"accountId": accountID,
		"filter":    filter,
		"sort": []map[string]any{
			{"property": "receivedAt", "isAscending": false},
		},
		"position": position,
	}
	if limit > 0 {
		queryArgs["limit"] = limit
	}

	getArgs := map[string]any{
		"accountId": accountID,
		"#ids": map[string]any{
			"resultOf": queryID,
			"name":     "Email/query",
			"path":     "/ids",
		},
		"properties": properties,
	}
	if fetchBodies {
		getArgs["fetchAllBodyValues"] = true
	}

	return c.Call(ctx, nil,
		Invocation{Name: "Email/query", Args: queryArgs, ClientID: queryID},
		Invocation{Name: "Email/get", Args: getArgs, ClientID: c.nextCallID()},
	)
}

func parseEmailList(results []Result) ([]*wireEmail, error) {
	r, err := findResult(results, "Email/get")
	if err != nil {
		return nil, err
	}

	var data struct {
		List []*wireEmail `json:"list"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse Email/get response: %w", err)
	}
	return data.List, nil
}

// FetchHeaders lists message summaries in a mailbox, newest first
func (c *Client) FetchHeaders(ctx context.Context, mailboxID string, position, limit uint32) ([]*EmailHeader, error) {
	results, err := c.queryAndGet(ctx, map[string]any{"inMailbox": mailboxID}, position, limit, headerProperties, false)
	if err != nil {
		return nil, err
	}

	emails, err := parseEmailList(results)
	if err != nil {
		return nil, err
	}

	headers := make([]*EmailHeader, 0, len(emails))
	for _, e := range emails {
		h := e.header()
		headers = append(headers, &h)
	}
	return headers, nil
}

// FetchEmail fetches a full message with body values
func (c *Client) FetchEmail(ctx context.Context, emailID string) (*Email, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name: "Email/get",
		Args: map[string]any{
			"accountId":          accountID,
			"ids":                []string{emailID},
			"properties":         emailProperties,
			"fetchAllBodyValues": true,
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return nil, err
	}

	emails, err := parseEmailList(results)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("email %q not found", emailID)
	}

	return emailFromWire(emails[0]), nil
}

func emailFromWire(w *wireEmail) *Email {
	email := &Email{
		EmailHeader: w.header(),
		Cc:          formatAddressList(w.Cc),
		Bcc:         formatAddressList(w.Bcc),
	}

	for _, part := range w.TextBody {
		if v, ok := w.BodyValues[part.PartID]; ok {
			email.BodyText += v.Value
		}
	}
	for _, part := range w.HTMLBody {
		if v, ok := w.BodyValues[part.PartID]; ok {
			email.BodyHTML += v.Value
		}
	}

	for _, att := range w.Attachments {
		name := att.Name
		if name == "" {
			name = "attachment"
		}
		mimeType := att.Type
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		email.Attachments = append(email.Attachments, Attachment{
			BlobID:   att.BlobID,
			Name:     name,
			MIMEType: mimeType,
			Size:     att.Size,
		})
	}
	if len(email.Attachments) > 0 {
		email.HasAttachments = true
	}

	return email
}

// Search forwards a free-text query to the server, optionally scoped to
// a mailbox, returning at most 50 summaries newest first.
func (c *Client) Search(ctx context.Context, query, mailboxID string) ([]*EmailHeader, error) {
	filter := map[string]any{"text": query}
	if mailboxID != "" {
		filter = map[string]any{
			"operator":   "AND",
			"conditions": []map[string]any{{"text": query}, {"inMailbox": mailboxID}},
		}
	}

	results, err := c.queryAndGet(ctx, filter, 0, 50, headerProperties, false)
	if err != nil {
		return nil, err
	}

	emails, err := parseEmailList(results)
	if err != nil {
		return nil, err
	}

	headers := make([]*EmailHeader, 0, len(emails))
	for _, e := range emails {
		h := e.header()
		headers = append(headers, &h)
	}
	return headers, nil
}

// SetKeyword sets or clears a keyword on the given messages in one
// Email/set call.
func (c *Client) SetKeyword(ctx context.Context, emailIDs []string, keyword string, value bool) error {
	if len(emailIDs) == 0 {
		return nil
	}
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	update := make(map[string]any, len(emailIDs))
	var patch any
	if value {
		patch = true
	} // else nil removes the keyword
	for _, id := range emailIDs {
		update[id] = map[string]any{"keywords/" + keyword: patch}
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name:     "Email/set",
		Args:     map[string]any{"accountId": accountID, "update": update},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "Email/set")
	if err != nil {
		return err
	}
	for _, id := range emailIDs {
		if err := checkSetErrors(r.Data, "notUpdated", id, "update keywords"); err != nil {
			return err
		}
	}
	return nil
}

// Move re-homes the given messages into the target mailbox
func (c *Client) Move(ctx context.Context, emailIDs []string, targetMailboxID string) error {
	if len(emailIDs) == 0 {
		return nil
	}
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	update := make(map[string]any, len(emailIDs))
	for _, id := range emailIDs {
		update[id] = map[string]any{"mailboxIds": map[string]bool{targetMailboxID: true}}
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name:     "Email/set",
		Args:     map[string]any{"accountId": accountID, "update": update},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "Email/set")
	if err != nil {
		return err
	}
	for _, id := range emailIDs {
		if err := checkSetErrors(r.Data, "notUpdated", id, "move email"); err != nil {
			return err
		}
	}
	return nil
}

// Delete destroys the given messages
func (c *Client) Delete(ctx context.Context, emailIDs []string) error {
	if len(emailIDs) == 0 {
		return nil
	}
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name:     "Email/set",
		Args:     map[string]any{"accountId": accountID, "destroy": emailIDs},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "Email/set")
	if err != nil {
		return err
	}
	for _, id := range emailIDs {
		if err := checkSetErrors(r.Data, "notDestroyed", id, "delete email"); err != nil {
			return err
		}
	}
	return nil
}

package jmap

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListMailboxes returns all mailboxes of the primary account
func (c *Client) ListMailboxes(ctx context.Context) ([]*Mailbox, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name:     "Mailbox/get",
		Args:     map[string]any{"accountId": accountID, "ids": nil},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return nil, err
	}

	r, err := findResult(results, "Mailbox/get")
	if err != nil {
		return nil, err
	}

	var data struct {
		List []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ParentID     string `json:"parentId"`
			Role         string `json:"role"`
			TotalEmails  uint32 `json:"totalEmails"`
			UnreadEmails uint32 `json:"unreadEmails"`
			SortOrder    uint32 `json:"sortOrder"`
		} `json:"list"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse Mailbox/get response: %w", err)
	}

	mailboxes := make([]*Mailbox, 0, len(data.List))
	for _, m := range data.List {
		mailboxes = append(mailboxes, &Mailbox{
			ID:           m.ID,
			Name:         m.Name,
			ParentID:     m.ParentID,
			Role:         m.Role,
			TotalEmails:  m.TotalEmails,
			UnreadEmails: m.UnreadEmails,
			SortOrder:    m.SortOrder,
		})
	}

	c.log.Debug().Int("count", len(mailboxes)).Msg("Listed mailboxes")
	return mailboxes, nil
}

// MailboxByRole returns the id of the first mailbox with the given role
func (c *Client) MailboxByRole(ctx context.Context, role string) (string, error) {
	mailboxes, err := c.ListMailboxes(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range mailboxes {
		if m.Role == role {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("no mailbox with role %q", role)
}

// CreateMailbox creates a mailbox and returns its server-assigned id
func (c *Client) CreateMailbox(ctx context.Context, name, parentID string) (string, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return "", err
	}

	create := map[string]any{"name": name}
	if parentID != "" {
		create["parentId"] = parentID
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name: "Mailbox/set",
		Args: map[string]any{
			"accountId": accountID,
			"create":    map[string]any{"new": create},
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return "", err
	}

	r, err := findResult(results, "Mailbox/set")
	if err != nil {
		return "", err
	}

	var data struct {
		Created map[string]struct {
			ID string `json:"id"`
		} `json:"created"`
		NotCreated map[string]setError `json:"notCreated"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return "", fmt.Errorf("failed to parse Mailbox/set response: %w", err)
	}
	if e, ok := data.NotCreated["new"]; ok {
		return "", fmt.Errorf("failed to create mailbox: %s", e)
	}
	created, ok := data.Created["new"]
	if !ok {
		return "", fmt.Errorf("server did not create mailbox %q", name)
	}
	return created.ID, nil
}

// DeleteMailbox destroys a mailbox, removing contained emails
func (c *Client) DeleteMailbox(ctx context.Context, mailboxID string) error {
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name: "Mailbox/set",
		Args: map[string]any{
			"accountId":              accountID,
			"destroy":                []string{mailboxID},
			"onDestroyRemoveEmails":  true,
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "Mailbox/set")
	if err != nil {
		return err
	}
	return checkSetErrors(r.Data, "notDestroyed", mailboxID, "delete mailbox")
}

// RenameMailbox changes a mailbox display name
func (c *Client) RenameMailbox(ctx context.Context, mailboxID, newName string) error {
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name: "Mailbox/set",
		Args: map[string]any{
			"accountId": accountID,
			"update":    map[string]any{mailboxID: map[string]any{"name": newName}},
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "Mailbox/set")
	if err != nil {
		return err
	}
	return checkSetErrors(r.Data, "notUpdated", mailboxID, "rename mailbox")
}

// setError is a JMAP SetError object
type setError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (e setError) String() string {
	if e.Description != "" {
		return e.Type + " - " + e.Description
	}
	return e.Type
}

// checkSetErrors surfaces a per-id failure from a /set response section
// (notCreated, notUpdated, notDestroyed).
func checkSetErrors(data json.RawMessage, section, id, action string) error {
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	raw, ok := parsed[section]
	if !ok || string(raw) == "null" {
		return nil
	}
	var errs map[string]setError
	if err := json.Unmarshal(raw, &errs); err != nil {
		return nil
	}
	if e, ok := errs[id]; ok {
		return fmt.Errorf("failed to %s: %s", action, e)
	}
	return nil
}

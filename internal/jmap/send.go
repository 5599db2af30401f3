package jmap

import (
	"context"
	"encoding/json"
	"fmt"
)

// Identity is a JMAP sending identity
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identities lists the sending identities of the account
func (c *Client) Identities(ctx context.Context) ([]Identity, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	results, err := c.Call(ctx, []string{CapCore, CapMail, CapSubmission}, Invocation{
		Name:     "Identity/get",
		Args:     map[string]any{"accountId": accountID},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return nil, err
	}

	r, err := findResult(results, "Identity/get")
	if err != nil {
		return nil, err
	}

	var data struct {
		List []Identity `json:"list"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse Identity/get response: %w", err)
	}
	return data.List, nil
}

// selectIdentity prefers the identity whose email matches the account
// username, else the first.
func selectIdentity(identities []Identity, username string) (string, error) {
	for _, id := range identities {
		if id.Email == username {
			return id.ID, nil
		}
	}
	if len(identities) > 0 {
		return identities[0].ID, nil
	}
	return "", fmt.Errorf("no sending identity found")
}

// Send submits a pre-built RFC 5322 message: the raw bytes are uploaded
// as a blob, imported into the Sent mailbox with $seen, and submitted
// referencing the selected identity. Returns the imported email id.
func (c *Client) Send(ctx context.Context, raw []byte) (string, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return "", err
	}

	sentID, err := c.MailboxByRole(ctx, "sent")
	if err != nil {
		return "", fmt.Errorf("cannot resolve Sent mailbox: %w", err)
	}

	blobID, err := c.UploadBlob(ctx, raw, "message/rfc822")
	if err != nil {
		return "", err
	}

	results, err := c.Call(ctx, nil, Invocation{
		Name: "Email/import",
		Args: map[string]any{
			"accountId": accountID,
			"emails": map[string]any{
				"msg": map[string]any{
					"blobId":     blobID,
					"mailboxIds": map[string]bool{sentID: true},
					"keywords":   map[string]bool{KeywordSeen: true},
				},
			},
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return "", err
	}

	r, err := findResult(results, "Email/import")
	if err != nil {
		return "", err
	}

	var importData struct {
		Created map[string]struct {
			ID string `json:"id"`
		} `json:"created"`
		NotCreated map[string]setError `json:"notCreated"`
	}
	if err := json.Unmarshal(r.Data, &importData); err != nil {
		return "", fmt.Errorf("failed to parse Email/import response: %w", err)
	}
	if e, ok := importData.NotCreated["msg"]; ok {
		return "", fmt.Errorf("failed to import email: %s", e)
	}
	created, ok := importData.Created["msg"]
	if !ok {
		return "", fmt.Errorf("imported email has no id")
	}
	emailID := created.ID

	identities, err := c.Identities(ctx)
	if err != nil {
		return "", err
	}
	identityID, err := selectIdentity(identities, c.config.Username)
	if err != nil {
		return "", err
	}

	subResults, err := c.Call(ctx, []string{CapCore, CapMail, CapSubmission}, Invocation{
		Name: "EmailSubmission/set",
		Args: map[string]any{
			"accountId": accountID,
			"create": map[string]any{
				"sub": map[string]any{
					"emailId":    emailID,
					"identityId": identityID,
				},
			},
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return "", err
	}

	sub, err := findResult(subResults, "EmailSubmission/set")
	if err != nil {
		return "", err
	}
	if err := checkSetErrors(sub.Data, "notCreated", "sub", "submit email"); err != nil {
		return "", err
	}

	c.log.Info().Str("emailId", emailID).Msg("Email submitted")
	return emailID, nil
}

package jmap

import (
	"context"
	"encoding/json"
	"fmt"
)

var sieveUsing = []string{CapCore, CapSieve}

// ListSieveScripts returns all stored Sieve scripts
func (c *Client) ListSieveScripts(ctx context.Context) ([]*SieveScript, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	results, err := c.Call(ctx, sieveUsing, Invocation{
		Name:     "SieveScript/get",
		Args:     map[string]any{"accountId": accountID, "ids": nil},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return nil, err
	}

	r, err := findResult(results, "SieveScript/get")
	if err != nil {
		return nil, err
	}

	var data struct {
		List []*SieveScript `json:"list"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse SieveScript/get response: %w", err)
	}
	return data.List, nil
}

// SieveScriptContent downloads the content of a script by blob id
func (c *Client) SieveScriptContent(ctx context.Context, blobID string) (string, error) {
	data, err := c.DownloadBlob(ctx, blobID, "script.sieve")
	if err != nil {
		return "", fmt.Errorf("failed to download script: %w", err)
	}
	return string(data), nil
}

// SetSieveScript creates or updates a script in a single
// SieveScript/set. When activate is true the script becomes the only
// active one via onSuccessActivateScript; the server flips active flags
// atomically. Returns the script id.
func (c *Client) SetSieveScript(ctx context.Context, id, name, content string, activate bool) (string, error) {
	accountID, err := c.AccountID()
	if err != nil {
		return "", err
	}

	blobID, err := c.UploadBlob(ctx, []byte(content), "application/sieve")
	if err != nil {
		return "", fmt.Errorf("failed to upload script: %w", err)
	}

	args := map[string]any{"accountId": accountID}
	script := map[string]any{"name": name, "blobId": blobID}

	var onSuccess any // null deactivates
	if id == "" {
		args["create"] = map[string]any{"new": script}
		if activate {
			onSuccess = "#new"
		}
	} else {
		args["update"] = map[string]any{id: script}
		if activate {
			onSuccess = id
		}
	}
	if activate {
		args["onSuccessActivateScript"] = onSuccess
	}

	results, err := c.Call(ctx, sieveUsing, Invocation{
		Name:     "SieveScript/set",
		Args:     args,
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return "", err
	}

	r, err := findResult(results, "SieveScript/set")
	if err != nil {
		return "", err
	}

	if id != "" {
		if err := checkSetErrors(r.Data, "notUpdated", id, "update script"); err != nil {
			return "", err
		}
		return id, nil
	}

	if err := checkSetErrors(r.Data, "notCreated", "new", "create script"); err != nil {
		return "", err
	}
	var data struct {
		Created map[string]struct {
			ID string `json:"id"`
		} `json:"created"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return "", fmt.Errorf("failed to parse SieveScript/set response: %w", err)
	}
	created, ok := data.Created["new"]
	if !ok {
		return "", fmt.Errorf("server did not create script %q", name)
	}
	return created.ID, nil
}

// DeleteSieveScript destroys a script
func (c *Client) DeleteSieveScript(ctx context.Context, scriptID string) error {
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	results, err := c.Call(ctx, sieveUsing, Invocation{
		Name:     "SieveScript/set",
		Args:     map[string]any{"accountId": accountID, "destroy": []string{scriptID}},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	r, err := findResult(results, "SieveScript/set")
	if err != nil {
		return err
	}
	return checkSetErrors(r.Data, "notDestroyed", scriptID, "delete script")
}

// ActivateSieveScript makes the given script the single active one;
// an empty id deactivates all scripts.
func (c *Client) ActivateSieveScript(ctx context.Context, scriptID string) error {
	accountID, err := c.AccountID()
	if err != nil {
		return err
	}

	var onSuccess any
	if scriptID != "" {
		onSuccess = scriptID
	}

	results, err := c.Call(ctx, sieveUsing, Invocation{
		Name: "SieveScript/set",
		Args: map[string]any{
			"accountId":               accountID,
			"onSuccessActivateScript": onSuccess,
		},
		ClientID: c.nextCallID(),
	})
	if err != nil {
		return err
	}

	_, err = findResult(results, "SieveScript/set")
	return err
}

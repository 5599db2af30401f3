package imap

import (
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
)

// sentFolderNames is the probe list for append-to-sent. The first
// successful APPEND wins.
// TODO: prefer the \Sent special-use folder from ListFolders when the
// server advertises SPECIAL-USE, and fall back to this list.
var sentFolderNames = []string{
	"Sent",
	"Gesendet",
	"INBOX.Sent",
	"INBOX.Gesendet",
	"Sent Items",
	"Sent Messages",
}

// Append appends a raw RFC 5322 message to a folder and returns the
// assigned UID (0 when the server does not report one).
func (c *Client) Append(folder string, flags []string, msg []byte) (uint32, error) {
	if err := c.ensureConnected(); err != nil {
		return 0, err
	}

	options := &goimap.AppendOptions{Flags: toIMAPFlags(flags)}

	cmd := c.client.Append(folder, int64(len(msg)), options)
	if _, err := cmd.Write(msg); err != nil {
		return 0, fmt.Errorf("failed to write message data: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return 0, fmt.Errorf("failed to close append: %w", err)
	}

	data, err := cmd.Wait()
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	return uint32(data.UID), nil
}

// AppendToSent appends a sent message to the server's sent folder,
// probing the well-known name list. Failure to find any sent folder is
// reported but callers treat it as non-fatal.
func (c *Client) AppendToSent(msg []byte) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	seen := string(goimap.FlagSeen)
	for _, folder := range sentFolderNames {
		if _, err := c.Append(folder, []string{seen}, msg); err == nil {
			c.log.Debug().Str("folder", folder).Msg("Appended message to sent folder")
			return nil
		}
	}

	return fmt.Errorf("could not find a sent folder (tried %d names)", len(sentFolderNames))
}

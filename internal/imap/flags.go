package imap

import (
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
)

func toIMAPFlags(flags []string) []goimap.Flag {
	out := make([]goimap.Flag, len(flags))
	for i, f := range flags {
		out[i] = goimap.Flag(f)
	}
	return out
}

// storeFlags issues a UID STORE against the given UIDs
func (c *Client) storeFlags(folder string, uids []uint32, op goimap.StoreFlagsOp, flags []string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return err
	}

	store := &goimap.StoreFlags{
		Op:     op,
		Flags:  toIMAPFlags(flags),
		Silent: true,
	}
	if err := c.client.Store(uidSet(uids), store, nil).Close(); err != nil {
		return fmt.Errorf("failed to store flags: %w", err)
	}

	c.log.Debug().
		Str("folder", folder).
		Str("uids", FormatUIDSequence(uids)).
		Strs("flags", flags).
		Msg("Stored flags")

	return nil
}

// AddFlags adds flags to the given messages
func (c *Client) AddFlags(folder string, uids []uint32, flags []string) error {
	return c.storeFlags(folder, uids, goimap.StoreFlagsAdd, flags)
}

// RemoveFlags removes flags from the given messages
func (c *Client) RemoveFlags(folder string, uids []uint32, flags []string) error {
	return c.storeFlags(folder, uids, goimap.StoreFlagsDel, flags)
}

// ReplaceFlags replaces the full flag list of the given messages
func (c *Client) ReplaceFlags(folder string, uids []uint32, flags []string) error {
	return c.storeFlags(folder, uids, goimap.StoreFlagsSet, flags)
}

// MarkRead sets or clears \Seen
func (c *Client) MarkRead(folder string, uids []uint32, read bool) error {
	if read {
		return c.AddFlags(folder, uids, []string{string(goimap.FlagSeen)})
	}
	return c.RemoveFlags(folder, uids, []string{string(goimap.FlagSeen)})
}

// MarkFlagged sets or clears \Flagged
func (c *Client) MarkFlagged(folder string, uids []uint32, flagged bool) error {
	if flagged {
		return c.AddFlags(folder, uids, []string{string(goimap.FlagFlagged)})
	}
	return c.RemoveFlags(folder, uids, []string{string(goimap.FlagFlagged)})
}

// Delete marks messages \Deleted and expunges them. Only the selected
// folder is affected; UID EXPUNGE is used when UIDPLUS is advertised so
// unrelated \Deleted messages survive.
func (c *Client) Delete(folder string, uids []uint32) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return err
	}

	set := uidSet(uids)
	store := &goimap.StoreFlags{
		Op:     goimap.StoreFlagsAdd,
		Flags:  []goimap.Flag{goimap.FlagDeleted},
		Silent: true,
	}
	if err := c.client.Store(set, store, nil).Close(); err != nil {
		return fmt.Errorf("failed to mark messages deleted: %w", err)
	}

	if c.caps.Has(goimap.CapUIDPlus) {
		if err := c.client.UIDExpunge(set).Close(); err != nil {
			return fmt.Errorf("failed to expunge messages: %w", err)
		}
	} else {
		if err := c.client.Expunge().Close(); err != nil {
			return fmt.Errorf("failed to expunge messages: %w", err)
		}
	}

	c.log.Debug().
		Str("folder", folder).
		Int("count", len(uids)).
		Msg("Messages deleted")

	return nil
}

// Move moves messages to another folder. UID MOVE is preferred when the
// server advertises it; otherwise COPY + \Deleted + EXPUNGE.
func (c *Client) Move(folder string, uids []uint32, destFolder string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	if _, err := c.ensureSelected(folder); err != nil {
		return err
	}

	set := uidSet(uids)

	if c.caps.Has(goimap.CapMove) {
		if _, err := c.client.Move(set, destFolder).Wait(); err != nil {
			return fmt.Errorf("failed to move messages: %w", err)
		}
		return nil
	}

	// Fallback for servers without MOVE
	if _, err := c.client.Copy(set, destFolder).Wait(); err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}
	store := &goimap.StoreFlags{
		Op:     goimap.StoreFlagsAdd,
		Flags:  []goimap.Flag{goimap.FlagDeleted},
		Silent: true,
	}
	if err := c.client.Store(set, store, nil).Close(); err != nil {
		return fmt.Errorf("failed to mark moved messages deleted: %w", err)
	}
	if err := c.client.Expunge().Close(); err != nil {
		return fmt.Errorf("failed to expunge moved messages: %w", err)
	}

	return nil
}

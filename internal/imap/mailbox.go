package imap

import (
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/zitrone/mailengine/internal/codec"
)

// ListFolders returns all folders of the account
func (c *Client) ListFolders() ([]*Folder, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	listCmd := c.client.List("", "*", nil)

	var folders []*Folder
	for {
		mbox := listCmd.Next()
		if mbox == nil {
			break
		}

		f := &Folder{
			Name:       mbox.Mailbox,
			WireName:   codec.EncodeUTF7(mbox.Mailbox),
			Delimiter:  string(mbox.Delim),
			Attributes: make([]string, len(mbox.Attrs)),
		}
		for i, attr := range mbox.Attrs {
			f.Attributes[i] = string(attr)
		}
		f.Type = determineFolderType(mbox.Mailbox, mbox.Attrs)

		folders = append(folders, f)
	}

	if err := listCmd.Close(); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	// If a type was claimed via SPECIAL-USE, demote name-only matches
	// so stale folders created by other clients don't shadow the real
	// provider folder.
	attrTypes := make(map[FolderType]bool)
	for _, f := range folders {
		if f.Type != FolderTypeFolder && f.Type != FolderTypeInbox && hasSpecialUseAttr(f.Attributes) {
			attrTypes[f.Type] = true
		}
	}
	for _, f := range folders {
		if f.Type != FolderTypeFolder && f.Type != FolderTypeInbox && attrTypes[f.Type] && !hasSpecialUseAttr(f.Attributes) {
			f.Type = FolderTypeFolder
		}
	}

	c.log.Debug().Int("count", len(folders)).Msg("Listed folders")
	return folders, nil
}

// Select selects a folder and returns its status. Selecting the
// already-selected folder re-issues SELECT to refresh counts.
func (c *Client) Select(folder string) (*Folder, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	data, err := c.client.Select(folder, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %q: %w", folder, err)
	}
	c.selected = folder

	f := &Folder{
		Name:        folder,
		WireName:    codec.EncodeUTF7(folder),
		UIDValidity: data.UIDValidity,
		UIDNext:     uint32(data.UIDNext),
		Total:       data.NumMessages,
	}

	c.log.Debug().
		Str("folder", folder).
		Uint32("messages", data.NumMessages).
		Uint32("uidValidity", data.UIDValidity).
		Msg("Selected folder")

	return f, nil
}

// ensureSelected takes the transition to Selected(folder). It always
// re-issues SELECT, also when folder is already selected, so the
// returned counts are fresh. Every data-plane operation goes through
// this.
func (c *Client) ensureSelected(folder string) (*Folder, error) {
	return c.Select(folder)
}

// Status returns folder counters without selecting it
func (c *Client) Status(folder string) (*Folder, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	options := &goimap.StatusOptions{
		NumMessages: true,
		UIDNext:     true,
		UIDValidity: true,
		NumUnseen:   true,
	}

	data, err := c.client.Status(folder, options).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder status: %w", err)
	}

	f := &Folder{Name: folder, WireName: codec.EncodeUTF7(folder)}
	f.UIDValidity = data.UIDValidity
	f.UIDNext = uint32(data.UIDNext)
	if data.NumMessages != nil {
		f.Total = *data.NumMessages
	}
	if data.NumUnseen != nil {
		f.Unseen = *data.NumUnseen
	}
	return f, nil
}

// CreateFolder creates a new folder
func (c *Client) CreateFolder(name string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if err := c.client.Create(name, nil).Wait(); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	c.log.Info().Str("folder", name).Msg("Folder created")
	return nil
}

// DeleteFolder deletes a folder
func (c *Client) DeleteFolder(name string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if err := c.client.Delete(name).Wait(); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if c.selected == name {
		c.selected = ""
	}
	c.log.Info().Str("folder", name).Msg("Folder deleted")
	return nil
}

// RenameFolder renames a folder
func (c *Client) RenameFolder(oldName, newName string) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	if err := c.client.Rename(oldName, newName, nil).Wait(); err != nil {
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	if c.selected == oldName {
		c.selected = newName
	}
	return nil
}

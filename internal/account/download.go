package account

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// downloadsDir returns the OS downloads directory, falling back to the
// home directory when none exists.
func downloadsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	dir := filepath.Join(home, "Downloads")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	return home, nil
}

// uniquePath resolves filename collisions by appending " (n)" before
// the extension.
func uniquePath(dir, filename string) string {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// sanitizeFilename strips path separators and other characters that
// could escape the downloads directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")
	name = r.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return name
}

// DownloadAttachment fetches an attachment and writes it into the OS
// downloads directory with a duplicate-resolving rename. Returns the
// written path.
func (r *Registry) DownloadAttachment(ctx context.Context, accountID, folder string, uid uint32, partID, blobID, filename string) (string, error) {
	data, err := r.FetchAttachment(ctx, accountID, folder, uid, partID, blobID, filename)
	if err != nil {
		return "", err
	}

	dir, err := downloadsDir()
	if err != nil {
		return "", err
	}

	path := uniquePath(dir, sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	r.log.Info().Str("path", path).Int("size", len(data)).Msg("Attachment downloaded")
	return path, nil
}

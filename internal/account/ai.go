package account

import (
	"context"
	"fmt"

	"github.com/zitrone/mailengine/internal/ai"
)

// SetAIProvider wires the completion provider the AI operations
// consume. Without one, those operations fail with a clear error.
func (r *Registry) SetAIProvider(provider ai.Provider) {
	r.mu.Lock()
	r.aiProvider = provider
	r.mu.Unlock()
}

func (r *Registry) provider() (ai.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aiProvider == nil {
		return nil, fmt.Errorf("no AI provider configured")
	}
	return r.aiProvider, nil
}

// CategorizeFolder runs automatic categorization over uncategorized
// cached messages in a folder.
func (r *Registry) CategorizeFolder(ctx context.Context, accountID, folder string, limit uint32) (int, error) {
	provider, err := r.provider()
	if err != nil {
		return 0, err
	}
	c, err := r.Cache(accountID)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = 25
	}
	return ai.NewCategorizer(provider, c).CategorizeNew(ctx, folder, limit)
}

// ScanSpamFolder runs the memoized spam scan above the folder watermark
func (r *Registry) ScanSpamFolder(ctx context.Context, accountID, folder string, limit uint32) (int, error) {
	provider, err := r.provider()
	if err != nil {
		return 0, err
	}
	c, err := r.Cache(accountID)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = 25
	}
	return ai.NewAnalyzer(provider, c).ScanFolder(ctx, folder, limit)
}

// SummarizeEmail summarizes a cached message body
func (r *Registry) SummarizeEmail(ctx context.Context, accountID, folder string, uid uint32) (string, error) {
	provider, err := r.provider()
	if err != nil {
		return "", err
	}
	c, err := r.Cache(accountID)
	if err != nil {
		return "", err
	}

	email, err := c.Email(folder, uid)
	if err != nil {
		return "", err
	}
	if email == nil || email.BodyText == "" {
		return "", fmt.Errorf("no cached body for message %d in %q", uid, folder)
	}

	return ai.NewAnalyzer(provider, c).Summarize(ctx, email.Subject, email.BodyText)
}

// ExtractDeadlines pulls dated commitments from a cached message
func (r *Registry) ExtractDeadlines(ctx context.Context, accountID, folder string, uid uint32) ([]ai.Deadline, error) {
	provider, err := r.provider()
	if err != nil {
		return nil, err
	}
	c, err := r.Cache(accountID)
	if err != nil {
		return nil, err
	}

	email, err := c.Email(folder, uid)
	if err != nil {
		return nil, err
	}
	if email == nil || email.BodyText == "" {
		return nil, fmt.Errorf("no cached body for message %d in %q", uid, folder)
	}

	return ai.NewAnalyzer(provider, c).ExtractDeadlines(ctx, email.Subject, email.BodyText)
}

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/cache"
	"github.com/zitrone/mailengine/internal/logging"
)

// Categorizer assigns categories to cached messages using the provider.
// Results persist through the cache contract; user overrides are never
// replaced.
type Categorizer struct {
	provider Provider
	cache    *cache.Cache
	log      zerolog.Logger
}

// NewCategorizer creates a categorizer over one account's cache
func NewCategorizer(provider Provider, c *cache.Cache) *Categorizer {
	return &Categorizer{
		provider: provider,
		cache:    c,
		log:      logging.WithComponent("ai-categorizer"),
	}
}

type categoryResult struct {
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
}

// CategorizeNew categorizes up to limit uncategorized messages in a
// folder. Per-message failures are logged and skipped so one bad
// response does not stall the batch.
func (c *Categorizer) CategorizeNew(ctx context.Context, folder string, limit uint32) (int, error) {
	if !c.provider.Available(ctx) {
		return 0, fmt.Errorf("AI provider not available")
	}

	categories, err := c.cache.Categories()
	if err != nil {
		return 0, err
	}

	uids, err := c.cache.Uncategorized(folder, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, uid := range uids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		email, err := c.cache.Email(folder, uid)
		if err != nil || email == nil {
			continue
		}

		result, err := c.categorizeOne(ctx, email.Subject, email.From, email.BodyText, categories)
		if err != nil {
			c.log.Warn().Err(err).Uint32("uid", uid).Msg("Categorization failed, skipping")
			continue
		}

		if err := c.cache.SetEmailCategory(folder, uid, result.CategoryID, result.Confidence, false); err != nil {
			return done, err
		}
		done++
	}

	c.log.Debug().Str("folder", folder).Int("categorized", done).Msg("Categorization pass complete")
	return done, nil
}

func (c *Categorizer) categorizeOne(ctx context.Context, subject, from, body string, categories []cache.Category) (*categoryResult, error) {
	var list strings.Builder
	valid := make(map[string]bool, len(categories))
	for _, cat := range categories {
		fmt.Fprintf(&list, "- %s: %s\n", cat.ID, cat.Name)
		valid[cat.ID] = true
	}

	if len(body) > 1000 {
		body = body[:1000]
	}

	messages := []Message{
		{Role: "system", Content: "You are an email categorizer. Assign the email to the best matching category.\n\nAvailable categories:\n" + list.String() + "\nAnswer ONLY with JSON: {\"category_id\": \"...\", \"confidence\": 0.0-1.0}"},
		{Role: "user", Content: fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, from, body)},
	}

	response, err := c.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	var result categoryResult
	if err := json.Unmarshal([]byte(ExtractJSON(response)), &result); err != nil {
		return nil, fmt.Errorf("unparseable categorization response: %w", err)
	}
	if !valid[result.CategoryID] {
		return nil, fmt.Errorf("model returned unknown category %q", result.CategoryID)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		result.Confidence = 0.5
	}
	return &result, nil
}

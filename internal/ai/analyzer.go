package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/cache"
	"github.com/zitrone/mailengine/internal/logging"
)

// Analyzer runs spam scans and free-form analyses over cached messages.
// Spam verdicts are memoized; the per-folder watermark bounds each
// incremental pass.
type Analyzer struct {
	provider Provider
	cache    *cache.Cache
	log      zerolog.Logger
}

// NewAnalyzer creates an analyzer over one account's cache
func NewAnalyzer(provider Provider, c *cache.Cache) *Analyzer {
	return &Analyzer{
		provider: provider,
		cache:    c,
		log:      logging.WithComponent("ai-analyzer"),
	}
}

type spamResult struct {
	IsSpam     bool    `json:"is_spam"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ScanFolder scans up to limit cached messages above the spam
// watermark and memoizes the verdicts. The watermark only advances
// past messages that were actually scanned.
func (a *Analyzer) ScanFolder(ctx context.Context, folder string, limit uint32) (int, error) {
	if !a.provider.Available(ctx) {
		return 0, fmt.Errorf("AI provider not available")
	}

	uids, err := a.cache.UnscannedUIDs(folder, limit)
	if err != nil {
		return 0, err
	}

	scanned := 0
	for _, uid := range uids {
		if ctx.Err() != nil {
			return scanned, ctx.Err()
		}

		email, err := a.cache.Email(folder, uid)
		if err != nil {
			return scanned, err
		}
		if email == nil {
			continue
		}

		result, err := a.scanOne(ctx, email.Subject, email.From, email.BodyText)
		if err != nil {
			a.log.Warn().Err(err).Uint32("uid", uid).Msg("Spam scan failed, stopping pass")
			return scanned, nil
		}

		if err := a.cache.SetSpamScan(folder, uid, result.IsSpam, result.Confidence, result.Reason); err != nil {
			return scanned, err
		}
		if err := a.cache.SetSpamScanWatermark(folder, uid); err != nil {
			return scanned, err
		}
		scanned++
	}

	a.log.Debug().Str("folder", folder).Int("scanned", scanned).Msg("Spam scan pass complete")
	return scanned, nil
}

func (a *Analyzer) scanOne(ctx context.Context, subject, from, body string) (*spamResult, error) {
	if len(body) > 1500 {
		body = body[:1500]
	}

	messages := []Message{
		{Role: "system", Content: "You are a spam detector. Judge whether the email is spam.\nAnswer ONLY with JSON: {\"is_spam\": true|false, \"confidence\": 0.0-1.0, \"reason\": \"short explanation\"}"},
		{Role: "user", Content: fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, from, body)},
	}

	response, err := a.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	var result spamResult
	if err := json.Unmarshal([]byte(ExtractJSON(response)), &result); err != nil {
		return nil, fmt.Errorf("unparseable spam response: %w", err)
	}
	return &result, nil
}

// Summarize produces a short summary of a message body
func (a *Analyzer) Summarize(ctx context.Context, subject, body string) (string, error) {
	if !a.provider.Available(ctx) {
		return "", fmt.Errorf("AI provider not available")
	}
	if len(body) > 4000 {
		body = body[:4000]
	}

	return a.provider.Complete(ctx, []Message{
		{Role: "system", Content: "Summarize the email in at most three sentences."},
		{Role: "user", Content: fmt.Sprintf("Subject: %s\n\n%s", subject, body)},
	})
}

// Deadline is an extracted commitment with its source phrase
type Deadline struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// ExtractDeadlines pulls dated commitments out of a message body
func (a *Analyzer) ExtractDeadlines(ctx context.Context, subject, body string) ([]Deadline, error) {
	if !a.provider.Available(ctx) {
		return nil, fmt.Errorf("AI provider not available")
	}
	if len(body) > 4000 {
		body = body[:4000]
	}

	response, err := a.provider.Complete(ctx, []Message{
		{Role: "system", Content: "Extract deadlines and dated commitments from the email.\nAnswer ONLY with JSON: {\"deadlines\": [{\"date\": \"YYYY-MM-DD\", \"description\": \"...\"}]}"},
		{Role: "user", Content: fmt.Sprintf("Subject: %s\n\n%s", subject, body)},
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	var result struct {
		Deadlines []Deadline `json:"deadlines"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(response)), &result); err != nil {
		return nil, fmt.Errorf("unparseable deadline response: %w", err)
	}
	return result.Deadlines, nil
}

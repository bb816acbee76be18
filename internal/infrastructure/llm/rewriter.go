package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autoblogger/internal/domain"
	"autoblogger/internal/rules"
)

// Rewriter sends drafts to an OpenAI-compatible chat-completion API
// and turns the completion back into a Draft. It enforces hard
// content constraints (minimum length, banned phrases) on the output.
type Rewriter struct {
	endpoint   string
	model      string
	apiKey     string
	minLength  int
	httpClient *http.Client
	rs         *rules.RuleSet
}

// Config carries connection settings for the language service.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	MinLength int
	Timeout   time.Duration
}

// NewRewriter builds a client from configuration.
func NewRewriter(cfg Config, rs *rules.RuleSet) *Rewriter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = 300
	}
	return &Rewriter{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		minLength:  minLength,
		httpClient: &http.Client{Timeout: timeout},
		rs:         rs,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Rewrite sends the draft with the named style template and returns a
// complete new draft or fails; output is never partially applied.
// Unknown template names fall back to the default prompt. Identical
// (draft, template) input may be resent safely.
func (r *Rewriter) Rewrite(ctx context.Context, draft domain.Draft, template string) (domain.Draft, error) {
	if r.apiKey == "" || r.endpoint == "" || r.model == "" {
		return domain.Draft{}, domain.Errorf(domain.KindModel, false, "rewriter misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": r.model,
		"messages": []map[string]string{
			{"role": "system", "content": r.rs.StyleTemplate(template)},
			{"role": "user", "content": fmt.Sprintf("Title: %s\n\n%s", draft.Title, draft.Body())},
		},
	})
	if err != nil {
		return domain.Draft{}, domain.NewError(domain.KindModel, false, "marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Draft{}, domain.NewError(domain.KindModel, false, "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Draft{}, err
		}
		return domain.Draft{}, domain.NewError(domain.KindModel, true, "call model", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return domain.Draft{}, domain.Errorf(domain.KindModel, transient,
			"model returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Draft{}, domain.NewError(domain.KindModel, true, "decode completion", err)
	}
	if len(parsed.Choices) == 0 {
		return domain.Draft{}, domain.Errorf(domain.KindModel, true, "model returned no choices")
	}

	out := completionToDraft(parsed.Choices[0].Message.Content, draft)
	if err := r.checkPolicy(out); err != nil {
		return domain.Draft{}, err
	}
	return out, nil
}

// checkPolicy enforces hard constraints; violations are not
// retryable without a template change.
func (r *Rewriter) checkPolicy(draft domain.Draft) error {
	if len(draft.Blocks) == 0 {
		return domain.Errorf(domain.KindContentPolicy, false, "model produced an empty body")
	}
	if total := len(draft.Body()); total < r.minLength {
		return domain.Errorf(domain.KindContentPolicy, false,
			"rewritten body below minimum length (%d < %d)", total, r.minLength)
	}
	if r.rs != nil {
		if phrase := r.rs.BannedPhraseIn(draft.Title + " " + draft.Body()); phrase != "" {
			return domain.Errorf(domain.KindContentPolicy, false, "output contains banned phrase %q", phrase)
		}
	}
	return nil
}

// completionToDraft splits the completion into title and paragraph
// blocks. A leading "Title:" line overrides the input title.
func completionToDraft(content string, in domain.Draft) domain.Draft {
	out := in.Clone()
	text := strings.TrimSpace(content)

	if line, rest, found := strings.Cut(text, "\n"); found && strings.HasPrefix(line, "Title:") {
		if title := strings.TrimSpace(strings.TrimPrefix(line, "Title:")); title != "" {
			out.Title = title
		}
		text = strings.TrimSpace(rest)
	}

	out.Blocks = nil
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			out.Blocks = append(out.Blocks, part)
		}
	}
	return out
}

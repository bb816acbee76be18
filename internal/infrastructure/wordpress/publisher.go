package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoblogger/internal/domain"
	"autoblogger/internal/ports"
)

// Publishing for a job is keyed by a UUIDv5 of the job ID in this
// namespace, so a retried publish always carries the same token.
var idempotencyNamespace = uuid.MustParse("7b9d2c54-1f4a-4c38-9a6e-5d8f0b3e21aa")

// Publisher submits assembled posts to the CMS remote API with
// idempotent resubmission and transparent session refresh.
type Publisher struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	store      ports.ReceiptStore

	mu    sync.Mutex
	token string
}

// Config carries CMS connection settings; credentials are supplied
// externally.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// NewPublisher wires the CMS client with the local receipt store used
// for the duplicate-prevention check.
func NewPublisher(cfg Config, store ports.ReceiptStore) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Publisher{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
	}
}

// IdempotencyToken returns the token embedded in the payload for a
// given job, stable across retries and process restarts.
func IdempotencyToken(jobID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(jobID)).String()
}

type postPayload struct {
	Title            string                `json:"title"`
	Content          string                `json:"content"`
	Category         string                `json:"category"`
	Tags             []string              `json:"tags"`
	MetaDescription  string                `json:"metaDescription"`
	FeaturedMediaID  string                `json:"featuredMediaId,omitempty"`
	Links            []domain.InsertedLink `json:"links,omitempty"`
	IdempotencyToken string                `json:"idempotencyToken"`
}

type postResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Publish assembles the final payload and submits it. A retried
// publish for the same job never creates a duplicate remote post: a
// locally persisted receipt short-circuits, and a remote conflict on
// the idempotency token is treated as success.
func (p *Publisher) Publish(ctx context.Context, jobID string, draft domain.Draft, meta domain.SeoMetadata, image domain.ImageAsset) (domain.PublishReceipt, error) {
	if existing, err := p.store.ReceiptFor(ctx, jobID); err == nil && existing != nil {
		return *existing, nil
	}

	token := IdempotencyToken(jobID)

	mediaID, err := p.uploadMedia(ctx, jobID, image)
	if err != nil {
		return domain.PublishReceipt{}, err
	}

	payload := postPayload{
		Title:            draft.Title,
		Content:          renderContent(draft, image),
		Category:         meta.Category,
		Tags:             meta.Tags,
		MetaDescription:  meta.MetaDescription,
		FeaturedMediaID:  mediaID,
		Links:            meta.Links,
		IdempotencyToken: token,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PublishReceipt{}, domain.NewError(domain.KindSubmit, false, "marshal payload", err)
	}

	resp, err := p.doAuthed(ctx, http.MethodPost, "/posts", "application/json", bytes.NewReader(body))
	if err != nil {
		return domain.PublishReceipt{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		receipt, err := decodeReceipt(resp.Body)
		if err != nil {
			return domain.PublishReceipt{}, err
		}
		return p.remember(ctx, jobID, receipt)
	case resp.StatusCode == http.StatusConflict:
		// The platform already has a post for this token; fetch its
		// receipt instead of erroring.
		receipt, err := p.fetchExisting(ctx, token)
		if err != nil {
			return domain.PublishReceipt{}, err
		}
		return p.remember(ctx, jobID, receipt)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.PublishReceipt{}, domain.Errorf(domain.KindSubmit, true, "cms returned %s", resp.Status)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.PublishReceipt{}, domain.Errorf(domain.KindSubmit, false,
			"cms rejected post: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
}

func (p *Publisher) remember(ctx context.Context, jobID string, receipt domain.PublishReceipt) (domain.PublishReceipt, error) {
	if err := p.store.SaveReceipt(ctx, jobID, receipt); err != nil {
		return domain.PublishReceipt{}, domain.NewError(domain.KindSubmit, true, "persist receipt", err)
	}
	return receipt, nil
}

func (p *Publisher) uploadMedia(ctx context.Context, jobID string, image domain.ImageAsset) (string, error) {
	if len(image.Data) == 0 {
		return "", nil
	}

	resp, err := p.doAuthed(ctx, http.MethodPost, "/media", image.ContentType, bytes.NewReader(image.Data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return "", domain.Errorf(domain.KindSubmit, true, "media upload returned %s", resp.Status)
	default:
		return "", domain.Errorf(domain.KindSubmit, false, "media upload rejected: %s", resp.Status)
	}

	var media struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return "", domain.NewError(domain.KindSubmit, true, "decode media response", err)
	}
	return media.ID, nil
}

func (p *Publisher) fetchExisting(ctx context.Context, token string) (domain.PublishReceipt, error) {
	resp, err := p.doAuthed(ctx, http.MethodGet, "/posts?idempotency_token="+token, "", nil)
	if err != nil {
		return domain.PublishReceipt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PublishReceipt{}, domain.Errorf(domain.KindSubmit, true,
			"lookup of existing post returned %s", resp.Status)
	}
	return decodeReceipt(resp.Body)
}

// doAuthed performs one request with the session token, refreshing
// the session once on expiry without operator intervention.
func (p *Publisher) doAuthed(ctx context.Context, method, path, contentType string, body io.ReadSeeker) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := p.sessionToken(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}

		if body != nil {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return nil, domain.NewError(domain.KindSubmit, false, "rewind body", err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = body
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
		if err != nil {
			return nil, domain.NewError(domain.KindSubmit, false, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, domain.NewError(domain.KindSubmit, true, "call cms", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, domain.Errorf(domain.KindAuth, false, "session rejected after refresh")
}

// sessionToken returns the cached token, authenticating when none is
// held or a refresh is forced.
func (p *Publisher) sessionToken(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && !force {
		return p.token, nil
	}

	creds, err := json.Marshal(map[string]string{
		"username": p.username,
		"password": p.password,
	})
	if err != nil {
		return "", domain.NewError(domain.KindAuth, false, "marshal credentials", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/token", bytes.NewReader(creds))
	if err != nil {
		return "", domain.NewError(domain.KindAuth, false, "build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", domain.NewError(domain.KindAuth, true, "call auth endpoint", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return "", domain.Errorf(domain.KindAuth, true, "auth endpoint returned %s", resp.Status)
	default:
		return "", domain.Errorf(domain.KindAuth, false, "credentials rejected: %s", resp.Status)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil || auth.Token == "" {
		return "", domain.NewError(domain.KindAuth, true, "decode auth response", err)
	}
	p.token = auth.Token
	return p.token, nil
}

func decodeReceipt(body io.Reader) (domain.PublishReceipt, error) {
	var parsed postResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return domain.PublishReceipt{}, domain.NewError(domain.KindSubmit, true, "decode post response", err)
	}
	if parsed.ID == "" {
		return domain.PublishReceipt{}, domain.Errorf(domain.KindSubmit, true, "post response missing id")
	}
	publishedAt := parsed.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	return domain.PublishReceipt{PostID: parsed.ID, URL: parsed.URL, PublishedAt: publishedAt}, nil
}

// renderContent joins the body blocks and appends the source and
// image attributions as a closing paragraph.
func renderContent(draft domain.Draft, image domain.ImageAsset) string {
	var sb strings.Builder
	sb.WriteString(draft.Body())

	var credits []string
	if draft.Attribution != "" {
		credits = append(credits, draft.Attribution)
	}
	if image.Attribution != "" {
		credits = append(credits, image.Attribution)
	}
	if len(credits) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("<em>%s</em>", strings.Join(credits, " | ")))
	}
	return sb.String()
}

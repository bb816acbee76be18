package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"autoblogger/internal/domain"
)

const maxImageBytes = 8 << 20

// Client queries a stock-image provider for license-compliant
// featured images.
type Client struct {
	endpoint   string
	apiKey     string
	perPage    int
	httpClient *http.Client
}

// Config carries connection settings for the image provider.
type Config struct {
	Endpoint string
	APIKey   string
	PerPage  int
	Timeout  time.Duration
}

// NewClient creates a reusable HTTP client for the provider.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 5
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		perPage:    perPage,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResult struct {
	Results []candidate `json:"results"`
}

type candidate struct {
	ID          string `json:"id"`
	DownloadURL string `json:"downloadUrl"`
	ContentType string `json:"contentType"`
	Attribution string `json:"attribution"`
	Licensed    bool   `json:"licensed"`
}

// Source tries the keywords in order and returns the first licensed
// image it can download. ImageNotFoundError after exhausting every
// keyword; LicenseError when matches existed but none were licensed.
// An unlicensed image is never attached silently.
func (c *Client) Source(ctx context.Context, keywords []string) (domain.ImageAsset, error) {
	if len(keywords) == 0 {
		return domain.ImageAsset{}, domain.Errorf(domain.KindImageNotFound, false, "no keywords to search with")
	}

	sawUnlicensed := false
	for _, keyword := range keywords {
		result, err := c.search(ctx, keyword)
		if err != nil {
			return domain.ImageAsset{}, err
		}
		for _, cand := range result.Results {
			if !cand.Licensed || cand.Attribution == "" {
				sawUnlicensed = true
				continue
			}
			asset, err := c.download(ctx, cand, keyword)
			if err != nil {
				return domain.ImageAsset{}, err
			}
			return asset, nil
		}
	}

	if sawUnlicensed {
		return domain.ImageAsset{}, domain.Errorf(domain.KindLicense, false,
			"only unlicensed matches for keywords %v", keywords)
	}
	return domain.ImageAsset{}, domain.Errorf(domain.KindImageNotFound, false,
		"no results for keywords %v", keywords)
}

func (c *Client) search(ctx context.Context, keyword string) (searchResult, error) {
	query := url.Values{}
	query.Set("query", keyword)
	query.Set("per_page", strconv.Itoa(c.perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/search?"+query.Encode(), nil)
	if err != nil {
		return searchResult{}, domain.NewError(domain.KindImageNotFound, false, "build search request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return searchResult{}, err
		}
		return searchResult{}, domain.NewError(domain.KindImageNotFound, true, "search images", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return searchResult{}, domain.Errorf(domain.KindImageNotFound, transient,
			"provider returned %s for %q", resp.Status, keyword)
	}

	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return searchResult{}, domain.NewError(domain.KindImageNotFound, true, "decode search response", err)
	}
	return result, nil
}

func (c *Client) download(ctx context.Context, cand candidate, keyword string) (domain.ImageAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.DownloadURL, nil)
	if err != nil {
		return domain.ImageAsset{}, domain.NewError(domain.KindImageNotFound, false, "build download request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ImageAsset{}, domain.NewError(domain.KindImageNotFound, true, "download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode >= 500
		return domain.ImageAsset{}, domain.Errorf(domain.KindImageNotFound, transient,
			"download of %s returned %s", cand.ID, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return domain.ImageAsset{}, domain.NewError(domain.KindImageNotFound, true, "read image body", err)
	}
	if len(data) == 0 {
		return domain.ImageAsset{}, domain.Errorf(domain.KindImageNotFound, true, "empty image body for %s", cand.ID)
	}

	contentType := cand.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return domain.ImageAsset{
		Data:        data,
		ContentType: contentType,
		SourceURL:   cand.DownloadURL,
		Attribution: fmt.Sprintf("Image: %s", cand.Attribution),
		Keyword:     keyword,
	}, nil
}

// Package dogceo resolves random breed images from the Dog CEO catalog API.
package dogceo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError is returned when the catalog answers with a non-2xx status or a
// non-"success" status field.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New creates a catalog client rooted at baseURL (e.g. https://dog.ceo/api).
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// ListSubBreeds returns the sub-breeds of breed; an empty slice means none.
func (c *Client) ListSubBreeds(ctx context.Context, breed string) ([]string, error) {
	var subs []string
	if err := c.get(ctx, &subs, "breed", breed, "list"); err != nil {
		return nil, fmt.Errorf("unable to list sub-breeds of %q: %w", breed, err)
	}
	c.log.Debug("listed sub-breeds", "breed", breed, "count", len(subs))
	return subs, nil
}

// ResolveImageURLs fetches one random image per sub-breed, in order, or a single
// image for the breed itself when subBreeds is empty. Any failure discards the
// partial result.
func (c *Client) ResolveImageURLs(ctx context.Context, breed string, subBreeds []string) ([]string, error) {
	if len(subBreeds) == 0 {
		img, err := c.randomImage(ctx, "breed", breed, "images", "random")
		if err != nil {
			return nil, fmt.Errorf("unable to fetch image for %q: %w", breed, err)
		}
		return []string{img}, nil
	}

	urls := make([]string, 0, len(subBreeds))
	for _, sub := range subBreeds {
		img, err := c.randomImage(ctx, "breed", breed, sub, "images", "random")
		if err != nil {
			return nil, fmt.Errorf("unable to fetch image for %q/%q: %w", breed, sub, err)
		}
		urls = append(urls, img)
	}
	return urls, nil
}

// ListBreeds returns the whole catalog, breed to sub-breeds.
func (c *Client) ListBreeds(ctx context.Context) (map[string][]string, error) {
	var all map[string][]string
	if err := c.get(ctx, &all, "breeds", "list", "all"); err != nil {
		return nil, fmt.Errorf("unable to list breeds: %w", err)
	}
	return all, nil
}

func (c *Client) randomImage(ctx context.Context, segments ...string) (string, error) {
	var img string
	if err := c.get(ctx, &img, segments...); err != nil {
		return "", err
	}
	if img == "" {
		return "", fmt.Errorf("empty image url")
	}
	c.log.Debug("resolved image", "url", img)
	return img, nil
}

type reply struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
}

func (c *Client) get(ctx context.Context, out any, segments ...string) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var r reply
	decodeErr := json.Unmarshal(body, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil {
			var s string
			if json.Unmarshal(r.Message, &s) == nil {
				msg = s
			}
		}
		return &StatusError{URL: u, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response: %w", decodeErr)
	}
	if r.Status != "success" {
		return &StatusError{URL: u, StatusCode: resp.StatusCode, Message: "status " + r.Status}
	}
	if err := json.Unmarshal(r.Message, out); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenType makes oauth2 send "Authorization: OAuth <token>" as the disk API expects.
const tokenType = "OAuth"

type DiskOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// ExistOK treats "folder already exists" (409) as a successful create.
	ExistOK bool
	// Base is the transport under the OAuth header; nil means http.DefaultTransport.
	Base   http.RoundTripper
	Logger *slog.Logger
}

// YandexDisk talks to the Yandex Disk REST API.
type YandexDisk struct {
	baseURL string
	existOK bool
	http    *http.Client
	log     *slog.Logger
}

func NewYandexDisk(opts DiskOptions) *YandexDisk {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.Token,
		TokenType:   tokenType,
	})

	return &YandexDisk{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		existOK: opts.ExistOK,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &oauth2.Transport{Source: src, Base: opts.Base},
		},
		log: log,
	}
}

// CreateFolder creates path on the disk. Any non-2xx answer is a failure, except
// 409 when the client was built with ExistOK.
func (d *YandexDisk) CreateFolder(ctx context.Context, path string) error {
	q := url.Values{"path": {path}}
	err := d.do(ctx, http.MethodPut, "/v1/disk/resources", q, nil)
	if err != nil {
		var se *StatusError
		if d.existOK && errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			d.log.Info("folder already exists", "path", path)
			return nil
		}
		return fmt.Errorf("unable to create folder %q: %w", path, err)
	}
	d.log.Info("folder created", "path", path)
	return nil
}

// Upload asks the disk to fetch target.SourceURL itself into target.Path(),
// overwriting whatever is there.
func (d *YandexDisk) Upload(ctx context.Context, target UploadTarget) error {
	q := url.Values{
		"path":      {target.Path()},
		"url":       {target.SourceURL},
		"overwrite": {"true"},
	}
	if err := d.do(ctx, http.MethodPost, "/v1/disk/resources/upload", q, nil); err != nil {
		return fmt.Errorf("unable to upload %q: %w", target.FileName, err)
	}
	d.log.Info("file uploaded", "name", target.FileName, "path", target.Path())
	return nil
}

// Stat returns the metadata of path, including its items when it is a folder.
func (d *YandexDisk) Stat(ctx context.Context, path string) (Resource, error) {
	var res Resource
	q := url.Values{"path": {path}}
	if err := d.do(ctx, http.MethodGet, "/v1/disk/resources", q, &res); err != nil {
		return Resource{}, fmt.Errorf("unable to stat %q: %w", path, err)
	}
	return res, nil
}

type apiError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

func (d *YandexDisk) do(ctx context.Context, method, endpoint string, q url.Values, out any) error {
	u := d.baseURL + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{
			Method:     method,
			Path:       q.Get("path"),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error != "" {
			se.Code = ae.Error
			se.Message = ae.Description
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/schemadiagram/internal/client/models"
	"github.com/dmitrijs2005/schemadiagram/internal/common"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPending     = errors.New("diagram not ready")
	ErrBusy        = errors.New("server busy")
	ErrUnavailable = errors.New("server unavailable")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Key     string
	State   string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrPending:
		return e.Status == http.StatusNotFound && e.State == statePending
	case ErrBusy:
		return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests
	}
	return false
}

const statePending = "pending"

// FailedError reports a request whose diagram could not be produced.
type FailedError struct {
	Key     string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("diagram %s failed: %s", e.Key, e.Message)
}

type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient returns a client for the server at baseURL. A nil hc uses a
// client with a 60s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *HTTPClient) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + common.APIPrefix + "/" + strings.Join(escaped, "/")
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Key    string `json:"key"`
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Key = body.Key
		apiErr.State = body.Status
		apiErr.Message = body.Error
	}
	return nil, apiErr
}

func (c *HTTPClient) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Upload submits a database and returns the stored metadata with its key.
func (c *HTTPClient) Upload(ctx context.Context, u models.Upload) (*models.Request, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range []struct{ name, value string }{
		{"name", u.Name}, {"email", u.Email}, {"title", u.Title},
	} {
		if field.value == "" {
			continue
		}
		if err := mw.WriteField(field.name, field.value); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(u.Path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+common.APIPrefix, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.Request
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Result returns the metadata for key once its diagram is ready. A request
// still being processed is reported as ErrPending (which also matches
// ErrNotFound) and a recorded failure as *FailedError.
func (c *HTTPClient) Result(ctx context.Context, key string) (*models.Request, error) {
	var out models.Request
	err := c.getJSON(ctx, c.url(key), &out)

	var apiErr *APIError
	if errors.Is(err, ErrPending) {
		return nil, err
	}
	if errors.As(err, &apiErr) && apiErr.Key != "" {
		return nil, &FailedError{Key: apiErr.Key, Message: apiErr.Message}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Download writes the artifact for key to w. A diagram that is not rendered
// yet is reported as ErrNotFound.
func (c *HTTPClient) Download(ctx context.Context, key string, a models.Artifact, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(key, string(a)), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s %s: %w", key, a, err)
	}
	return n, nil
}

// Wait polls every interval until the diagram for key is available and
// writes it to w. It stops early when the request failed or is unknown.
func (c *HTTPClient) Wait(ctx context.Context, key string, interval time.Duration, w io.Writer) (*models.Request, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := c.Result(ctx, key)
		switch {
		case errors.Is(err, ErrPending):
		case err != nil:
			return nil, err
		default:
			if _, err := c.Download(ctx, key, models.ArtifactDiagram, w); err != nil {
				return nil, err
			}
			return req, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// List returns recent submissions, newest first. limit <= 0 uses the
// server default.
func (c *HTTPClient) List(ctx context.Context, limit int) ([]models.Submission, error) {
	u := c.base + "/api/requests"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var out struct {
		Requests []models.Submission `json:"requests"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// Ping checks /healthz.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, c.base+"/healthz", &out)
}

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/librarymaster/librarymaster/internal/liberr"
)

const userAgent = "librarymaster/1.0"

// NewHTTPClient returns the client the adapters share. Timeouts are
// enforced per attempt by the executor, so the client itself carries only
// a generous ceiling.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// GetJSON fetches url and decodes the JSON body into out. A 404 maps to
// ErrNotFound, other non-2xx statuses to a StatusError so the executor can
// classify them.
func GetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	body, err := GetBytes(ctx, client, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetBytes fetches url and returns the raw body with the same status
// mapping as GetJSON.
func GetBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", url, liberr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return nil, &liberr.StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// Head probes url and reports whether it exists, with the same status
// mapping as GetBytes for errors.
func Head(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", url, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	default:
		return false, &liberr.StatusError{Code: resp.StatusCode, URL: url}
	}
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is returned for any non-2xx response so callers can classify
// provider failures by status code instead of string-matching.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: status %d: %s", e.URL, e.Code, e.Body)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 8<<10 {
		s = s[:8<<10]
	}
	return s
}

func Get[r any](h *http.Client, ctx context.Context, url string, headers map[string]string) (r, error) {

	var response r

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response, err
	}

	for key, val := range headers {
		req.Header.Add(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return response, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, &StatusError{Code: resp.StatusCode, URL: url, Body: snippet(responseBytes)}
	}

	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return response, fmt.Errorf("unmarshal %s: %w: %s", url, err, snippet(responseBytes))
	}

	return response, nil
}

func Post[b, r any](h *http.Client, ctx context.Context, url string, body b, headers map[string]string) (r, error) {

	var response r

	payload, err := json.Marshal(body)
	if err != nil {
		return response, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return response, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return response, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, &StatusError{Code: resp.StatusCode, URL: url, Body: snippet(responseBytes)}
	}

	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return response, fmt.Errorf("unmarshal %s: %w: %s", url, err, snippet(responseBytes))
	}

	return response, nil
}

// Download fetches a raw (non-JSON) resource. The caller owns resp.Body.
func Download(h *http.Client, ctx context.Context, url string, headers map[string]string) (*http.Response, error) {

	var resp *http.Response

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resp, err
	}

	for key, val := range headers {
		req.Header.Add(key, val)
	}

	resp, err = h.Do(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: url, Body: snippet(body)}
	}

	return resp, nil
}

// Package web provides the http_request tool.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

const (
	defaultMaxBytes = 100_000
	defaultTimeout  = 30 * time.Second
)

// Fetcher performs http_request calls.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int
}

// NewFetcher returns a fetcher with a 30s client timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: defaultTimeout},
		MaxBytes: defaultMaxBytes,
	}
}

func (f *Fetcher) do(ctx context.Context, rt *engine.Runtime, method, target string, headers map[string]string, body string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url must be an absolute http or https URL: %q", target)
	}
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rt.Emit(engine.Event{Type: engine.EventHTTPStart, URL: u.String(), Method: method})
	resp, err := f.Client.Do(req)
	if err != nil {
		rt.Emit(engine.Event{Type: engine.EventHTTPFinish, URL: u.String(), Method: method, Error: err.Error()})
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	truncated := len(data) > limit
	if truncated {
		data = data[:limit]
	}
	rt.Emit(engine.Event{
		Type:       engine.EventHTTPFinish,
		URL:        u.String(),
		Method:     method,
		StatusCode: resp.StatusCode,
		Count:      len(data),
		Truncated:  truncated,
	})

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&b, "Content-Type: %s\n", ct)
	}
	b.WriteByte('\n')
	b.Write(data)
	if truncated {
		fmt.Fprintf(&b, "\n[response truncated at %d bytes]", limit)
	}
	return b.String(), nil
}

func headerArg(raw any) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("headers must be an object")
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("header %q must be a string", k)
		}
		out[k] = s
	}
	return out, nil
}

// Tool returns the http_request tool bound to f.
func (f *Fetcher) Tool() engine.Tool {
	return engine.Tool{
		Name:        "http_request",
		Description: "Sends an HTTP request and returns the status line, content type and response body. Bodies larger than 100KB are truncated.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1, "description": "Absolute http or https URL"},
				"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "get", "post", "put", "patch", "delete", "head"]},
				"headers": {"type": "object", "additionalProperties": {"type": "string"}},
				"body": {"type": "string", "description": "Request body"}
			},
			"required": ["url"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			rt, _ := engine.RuntimeFrom(ctx)
			target, err := engine.ArgString(args, "url")
			if err != nil {
				return "", err
			}
			method, err := engine.ArgString(args, "method")
			if err != nil {
				return "", err
			}
			body, err := engine.ArgString(args, "body")
			if err != nil {
				return "", err
			}
			headers, err := headerArg(args["headers"])
			if err != nil {
				return "", err
			}
			return f.do(ctx, rt, method, target, headers, body)
		},
	}
}

// NewHTTPRequestTool returns http_request with default limits.
func NewHTTPRequestTool() engine.Tool {
	return NewFetcher().Tool()
}

package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/brettbedarf/webmirror/requests"
	"github.com/cenkalti/backoff/v5"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodPost HTTPMethod = "POST"
)

const statQuery = "stat"

// HTTPClient is the subset of *http.Client used by [HTTPRemote]
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports an unexpected HTTP status from the remote
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// HTTPProvider builds [HTTPRemote] stores sharing one client
type HTTPProvider struct {
	client HTTPClient
}

// NewHTTPProvider returns a provider using client, or http.DefaultClient when nil
func NewHTTPProvider(client HTTPClient) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{client: client}
}

// NewRemote validates opts and returns an [HTTPRemote]
func (p *HTTPProvider) NewRemote(opts webmirror.RemoteOptions) (webmirror.RemoteStore, error) {
	base, err := parseBaseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	attempts := max(opts.RetryMaxAttempts, 1)
	return &HTTPRemote{
		base:        base,
		headers:     opts.Headers,
		client:      p.client,
		maxAttempts: uint(attempts),
		initialWait: opts.RetryInitialWait,
	}, nil
}

func parseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("remote URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported remote URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("remote URL %q has no host", raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("remote URL must not carry credentials; use remote_headers")
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// HTTPRemote implements [webmirror.RemoteStore] against a remote directory
// service:
//
//	GET  <base><path>             JSON array of child names (directories) or raw bytes (leaves)
//	GET  <base><dir>/<name>?stat  JSON metadata
//	POST <base><dir>/<name>       create; 201 on success, no body for directories
//
// Transport errors and 5xx responses are retried with exponential backoff.
type HTTPRemote struct {
	base        string
	headers     map[string]string
	client      HTTPClient
	maxAttempts uint
	initialWait time.Duration
}

func (h *HTTPRemote) ListDirectory(ctx context.Context, dirPath string) ([]string, error) {
	data, err := h.do(ctx, HTTPMethodGet, dirPath, "", nil, "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	return requests.UnmarshalListing(data)
}

func (h *HTTPRemote) FetchMetadata(ctx context.Context, dirPath, name string) (*webmirror.ItemMetadata, error) {
	data, err := h.do(ctx, HTTPMethodGet, dirPath+"/"+name, statQuery, nil, "", http.StatusOK)
	if err != nil {
		return nil, err
	}
	return requests.UnmarshalMetadata(data, dirPath, name)
}

func (h *HTTPRemote) FetchContent(ctx context.Context, itemPath string) ([]byte, error) {
	return h.do(ctx, HTTPMethodGet, itemPath, "", nil, "", http.StatusOK)
}

func (h *HTTPRemote) PushItem(ctx context.Context, dirPath, name string, kind webmirror.Kind, data []byte) error {
	var contentType string
	if kind.IsDir() {
		data = nil
	} else {
		contentType = ContentTypeFor(kind, name)
	}
	_, err := h.do(ctx, HTTPMethodPost, dirPath+"/"+name, "", data, contentType, http.StatusCreated)
	return err
}

// URL returns the request URL for a remote path
func (h *HTTPRemote) URL(remotePath, query string) string {
	u := h.base + (&url.URL{Path: remotePath}).EscapedPath()
	if query != "" {
		u += "?" + query
	}
	return u
}

func (h *HTTPRemote) do(ctx context.Context, method HTTPMethod, remotePath, query string, body []byte, contentType string, want int) ([]byte, error) {
	logger := util.GetLogger("HTTPRemote")
	target := h.URL(remotePath, query)
	// a POST may have been applied even when its response was lost or failed
	retryable := method != HTTPMethodPost
	transient := func(err error) error {
		if retryable {
			return err
		}
		return backoff.Permanent(err)
	}

	op := func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, v := range h.headers {
			req.Header.Set(k, v)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		logger.Trace().Str("method", method).Str("url", target).Msg("Sending request")
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, transient(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, transient(err)
		}
		if resp.StatusCode == want {
			return data, nil
		}
		statusErr := &StatusError{Method: method, URL: target, Code: resp.StatusCode}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, transient(statusErr)
		}
		return nil, backoff.Permanent(statusErr)
	}

	b := backoff.NewExponentialBackOff()
	if h.initialWait > 0 {
		b.InitialInterval = h.initialWait
	}
	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(h.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn().Err(err).Str("url", target).Dur("retryIn", wait).Msg("Remote request failed, retrying")
		}),
	)
	if err != nil {
		logger.Debug().Err(err).Str("method", method).Str("url", target).Msg("Remote request failed")
		return nil, err
	}
	return data, nil
}

// ContentTypeFor picks the upload Content-Type of a leaf from its name,
// falling back to a default for its kind
func ContentTypeFor(kind webmirror.Kind, name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	switch kind {
	case webmirror.KindText:
		return "text/plain"
	case webmirror.KindStaticImage:
		return "image/png"
	case webmirror.KindAnimatedImage:
		return "image/gif"
	case webmirror.KindAudio:
		return "audio/mpeg"
	case webmirror.KindVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// Package client is a typed Go client for the ncmerged HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/dreamware/ncmerge/internal/partstore"
	"github.com/dreamware/ncmerge/internal/server"
)

// ErrNotFound is matched by StatusErrors carrying a 404.
var ErrNotFound = errors.New("not found")

// Upload encodings accepted by WithEncoding.
const (
	EncodingIdentity = ""
	EncodingGzip     = "gzip"
	EncodingZstd     = "zstd"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method  string
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %s %s: %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("http %s %s: %d: %s", e.Method, e.URL, e.Code, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to one ncmerged instance.
type Client struct {
	base     string
	http     *http.Client
	encoding string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// WithEncoding compresses uploads with gzip or zstd.
func WithEncoding(enc string) Option {
	return func(c *Client) { c.encoding = enc }
}

// New returns a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	switch c.encoding {
	case EncodingIdentity, EncodingGzip, EncodingZstd:
	default:
		return nil, fmt.Errorf("unsupported upload encoding %q", c.encoding)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.base + path
	}
	return c.base + path + "?" + query.Encode()
}

// do sends req and turns non-2xx responses into a *StatusError. The caller
// owns the returned body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotModified {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Method:  req.Method,
			URL:     req.URL.String(),
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(msg)),
		}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// PutPart uploads data into slot of the named dataset, compressing it with
// the client's encoding.
func (c *Client) PutPart(ctx context.Context, name string, slot partstore.Slot, data []byte) (server.UploadResponse, error) {
	var out server.UploadResponse
	body, err := c.encode(data)
	if err != nil {
		return out, err
	}
	path := "/part_a"
	if slot == partstore.SlotB {
		path = "/part_b"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, url.Values{"name": {name}}), bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", server.ContentType)
	if c.encoding != EncodingIdentity {
		req.Header.Set("Content-Encoding", c.encoding)
	}
	resp, err := c.do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func (c *Client) encode(data []byte) ([]byte, error) {
	switch c.encoding {
	case EncodingGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return data, nil
	}
}

// ReadResult is a merged container fetched from /read.
type ReadResult struct {
	Data    []byte
	ETag    string
	Format  string
	Skipped []string
	// NotModified is set when the server answered 304 to a conditional
	// request; Data is nil.
	NotModified bool
}

// Read fetches the merged container of a dataset. A non-empty etag makes
// the request conditional.
func (c *Client) Read(ctx context.Context, name, etag string) (*ReadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/read", url.Values{"name": {name}}), nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &ReadResult{ETag: resp.Header.Get("ETag")}
	if resp.StatusCode == http.StatusNotModified {
		res.NotModified = true
		if res.ETag == "" {
			res.ETag = etag
		}
		return res, nil
	}
	res.Format = resp.Header.Get(server.HeaderFormat)
	if s := resp.Header.Get(server.HeaderSkipped); s != "" {
		res.Skipped = strings.Split(s, ",")
	}
	if res.Data, err = io.ReadAll(resp.Body); err != nil {
		return nil, fmt.Errorf("read merged container: %w", err)
	}
	return res, nil
}

// Describe fetches the schema of part "a", "b" or "merged".
func (c *Client) Describe(ctx context.Context, name, part string) (*server.DescribeResponse, error) {
	q := url.Values{"name": {name}}
	if part != "" {
		q.Set("part", part)
	}
	var out server.DescribeResponse
	if err := c.getJSON(ctx, c.endpoint("/describe", q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete drops a dataset and both its parts.
func (c *Client) Delete(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/dataset", url.Values{"name": {name}}), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// List returns the stored datasets.
func (c *Client) List(ctx context.Context) ([]partstore.DatasetInfo, error) {
	var out server.DatasetsResponse
	if err := c.getJSON(ctx, c.endpoint("/datasets", nil), &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// Info returns store statistics and server limits.
func (c *Client) Info(ctx context.Context) (*server.InfoResponse, error) {
	var out server.InfoResponse
	if err := c.getJSON(ctx, c.endpoint("/info", nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns nil when the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

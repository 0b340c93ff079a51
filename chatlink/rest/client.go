package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const apiPrefix = "/api/v1"

// Client provides access to the backend HTTP API.
type Client struct {
	baseURL string
	base    http.RoundTripper
	timeout time.Duration

	mu         sync.RWMutex
	httpClient *http.Client
}

// NewClient creates a REST client. baseURL is the server root, e.g.
// "http://localhost:8000"; the /api/v1 prefix is added here.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		base:    http.DefaultTransport,
		timeout: 30 * time.Second,
	}
	c.httpClient = &http.Client{Timeout: c.timeout, Transport: c.base}
	return c
}

// SetHTTPClient replaces the underlying HTTP client. Its transport is
// used as the base for authenticated requests.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if client.Transport != nil {
		c.base = client.Transport
	}
	c.timeout = client.Timeout
	c.httpClient = client
}

// SetToken attaches bearer credentials to every following request.
// An empty token removes them.
func (c *Client) SetToken(token, tokenType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" {
		c.httpClient = &http.Client{Timeout: c.timeout, Transport: c.base}
		return
	}
	if tokenType == "" {
		tokenType = "Bearer"
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: tokenType})
	c.httpClient = &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: src, Base: c.base},
	}
}

func (c *Client) client() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

// Register creates a new account and returns its access token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.postJSON(ctx, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates with existing credentials.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.postJSON(ctx, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload streams r as the multipart field "file". progress, if set, is
// called with the running number of bytes handed to the transport.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, progress func(sent int64)) (*UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if progress != nil {
			r = &countingReader{r: r, fn: progress}
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		pr.Close()
		return nil, err
	}
	return &resp, nil
}

// UploadStatus reports the processing status of an uploaded file.
func (c *Client) UploadStatus(ctx context.Context, fileID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/upload/status/"+url.PathEscape(fileID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var resp StatusResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

type countingReader struct {
	r  io.Reader
	n  int64
	fn func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.fn(c.n)
	}
	return n, err
}

// Package api is the client for the project file-storage and comments REST
// endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/odvcencio/visualdocs-collab/logging"
	"github.com/odvcencio/visualdocs-collab/metrics"
	"github.com/odvcencio/visualdocs-collab/realtime"
	"github.com/odvcencio/visualdocs-collab/retry"
	"github.com/odvcencio/visualdocs-collab/tree"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Project is a project with its files.
type Project struct {
	ID    string
	Name  string
	Files []tree.FileRecord
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the project REST API with a bearer token. GETs are retried
// on transport errors and 5xx responses; saves are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	log        *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Named("api")
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: hc,
		retry:      cfg.Retry,
		log:        log,
		token:      cfg.Token,
	}
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()
	return req, nil
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(req.Method, 0, time.Since(start))
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(req.Method, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s", req.Method, req.URL.Path)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return retry.DoWithResult(ctx, c.retry, func() ([]byte, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		data, err := c.do(req)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return nil, err
		}
		c.log.Debug("retrying request", zap.String("path", path), zap.Error(err))
		return nil, retry.Retryable(err)
	})
}

// GetProject fetches a project with its embedded files.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	data, err := c.get(ctx, "/api/projects/"+url.PathEscape(projectID))
	if err != nil {
		return nil, errors.Wrapf(err, "get project %s", projectID)
	}
	var dto projectDTO
	if err := json.Unmarshal(unwrap(data, "project", "data"), &dto); err != nil {
		return nil, errors.Wrapf(err, "decode project %s", projectID)
	}
	p := &Project{
		ID:    firstNonEmpty(dto.ID, dto.MongoID, projectID),
		Name:  firstNonEmpty(dto.Name, dto.Title),
		Files: recordsFrom(dto.CodeFiles),
	}
	if len(p.Files) == 0 {
		p.Files = recordsFrom(dto.Files)
	}
	return p, nil
}

// ListFiles fetches the project's files.
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]tree.FileRecord, error) {
	data, err := c.get(ctx, "/api/projects/"+url.PathEscape(projectID)+"/files")
	if err != nil {
		return nil, errors.Wrapf(err, "list files of %s", projectID)
	}
	var files []fileDTO
	if err := json.Unmarshal(unwrap(data, "files", "codeFiles", "data"), &files); err != nil {
		return nil, errors.Wrapf(err, "decode files of %s", projectID)
	}
	return recordsFrom(files), nil
}

// ListComments fetches the project's comments.
func (c *Client) ListComments(ctx context.Context, projectID string) ([]realtime.Comment, error) {
	data, err := c.get(ctx, "/api/comments/projects/"+url.PathEscape(projectID))
	if err != nil {
		return nil, errors.Wrapf(err, "list comments of %s", projectID)
	}
	var comments []realtime.Comment
	if err := json.Unmarshal(unwrap(data, "comments", "data"), &comments); err != nil {
		return nil, errors.Wrapf(err, "decode comments of %s", projectID)
	}
	return comments, nil
}

// SaveFile replaces the content of one file. It is attempted once.
func (c *Client) SaveFile(ctx context.Context, projectID, fileID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return errors.Wrap(err, "encode save body")
	}
	path := "/api/projects/" + url.PathEscape(projectID) + "/files/" + url.PathEscape(fileID)
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		return errors.Wrapf(err, "save file %s", fileID)
	}
	return nil
}

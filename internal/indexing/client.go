package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harrison/docrouter/internal/models"
)

// ClientConfig configures the HTTP gateway client
type ClientConfig struct {
	Endpoint string // Base URL of the engine's REST gateway
	Database string
	Server   string
	User     string
	Password string
	Timeout  time.Duration
}

// APIError is a non-2xx response from the gateway
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type sessionRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	Server   string `json:"server,omitempty"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

type documentResponse struct {
	Handle string `json:"handle"`
}

type propertyRequest struct {
	PropertyID int    `json:"property_id"`
	Value      any    `json:"value"`
	DataType   string `json:"data_type"`
}

type commitResponse struct {
	DocumentID int `json:"document_id"`
}

type workflowRequest struct {
	WorkflowID int `json:"workflow_id"`
	QueueID    int `json:"queue_id"`
	ActivityID int `json:"activity_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPClient implements Service against the engine's REST gateway
type HTTPClient struct {
	config     ClientConfig
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPClient creates a client. The HTTP timeout is taken from the config.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &HTTPClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Connected reports whether a session token is held
func (c *HTTPClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Connect logs in and stores the session token. A failed login clears any previous session.
func (c *HTTPClient) Connect(ctx context.Context) error {
	c.setToken("")

	body := sessionRequest{
		User:     c.config.User,
		Password: c.config.Password,
		Database: c.config.Database,
		Server:   c.config.Server,
	}
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/session", "", body, &resp); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("connect: gateway returned an empty session token")
	}
	c.setToken(resp.Token)
	return nil
}

// Disconnect ends the session. Disconnecting without a session is a no-op.
func (c *HTTPClient) Disconnect(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return nil
	}
	c.setToken("")
	if err := c.doJSON(ctx, http.MethodDelete, "/session", token, nil, nil); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// CreateDocument uploads the file at path into folderID as documentTypeID
func (c *HTTPClient) CreateDocument(ctx context.Context, folderID, documentTypeID int, path string) (Handle, error) {
	token := c.currentToken()
	if token == "" {
		return "", ErrNotConnected
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("folder_id", strconv.Itoa(folderID)); err != nil {
		return "", err
	}
	if err := mw.WriteField("document_type_id", strconv.Itoa(documentTypeID)); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp documentResponse
	if err := c.do(ctx, http.MethodPost, "/documents", token, mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	if resp.Handle == "" {
		return "", fmt.Errorf("create document: gateway returned an empty handle")
	}
	return Handle(resp.Handle), nil
}

// SetProperty sets one property on an uncommitted document. The value is converted
// to dataType before it is sent.
func (c *HTTPClient) SetProperty(ctx context.Context, h Handle, propertyID int, value string, dataType models.DataType) error {
	token := c.currentToken()
	if token == "" {
		return ErrNotConnected
	}
	typed, err := TypedValue(value, dataType)
	if err != nil {
		return fmt.Errorf("property %d: %w", propertyID, err)
	}
	body := propertyRequest{PropertyID: propertyID, Value: typed, DataType: string(dataType)}
	if err := c.doJSON(ctx, http.MethodPost, documentPath(h, "properties"), token, body, nil); err != nil {
		return fmt.Errorf("set property %d: %w", propertyID, err)
	}
	return nil
}

// Commit stores the document and returns its id. The id is returned as sent by
// the gateway; callers decide what a non-positive id means.
func (c *HTTPClient) Commit(ctx context.Context, h Handle) (int, error) {
	token := c.currentToken()
	if token == "" {
		return 0, ErrNotConnected
	}
	var resp commitResponse
	if err := c.doJSON(ctx, http.MethodPost, documentPath(h, "commit"), token, struct{}{}, &resp); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return resp.DocumentID, nil
}

// PlaceInWorkflow routes a committed document into its initial workflow activity
func (c *HTTPClient) PlaceInWorkflow(ctx context.Context, h Handle, workflowID, queueID, activityID int) error {
	token := c.currentToken()
	if token == "" {
		return ErrNotConnected
	}
	body := workflowRequest{WorkflowID: workflowID, QueueID: queueID, ActivityID: activityID}
	if err := c.doJSON(ctx, http.MethodPost, documentPath(h, "workflow"), token, body, nil); err != nil {
		return fmt.Errorf("place in workflow %d: %w", workflowID, err)
	}
	return nil
}

func documentPath(h Handle, action string) string {
	return "/documents/" + url.PathEscape(string(h)) + "/" + action
}

func (c *HTTPClient) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// doJSON sends body (if non-nil) as JSON and decodes the response into out (if non-nil)
func (c *HTTPClient) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var r io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, token, contentType, r, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.setToken("")
			return fmt.Errorf("%w: %s", ErrNotConnected, apiErr.Error())
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

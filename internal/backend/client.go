package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"formpilot/internal/correlation"
	"formpilot/internal/dom"
)

// MaxPageText caps the page-text excerpt sent with start-session.
const MaxPageText = 3000

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 2048

// StatusError is a non-2xx response from the question service. It carries
// any correlation keys found in the response so a failed turn can be chased
// through the backend's own logs.
type StatusError struct {
	Status int
	Body   string
	Keys   []correlation.Key
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// HTTPStatus exposes the status code for retry classification.
func (e *StatusError) HTTPStatus() int { return e.Status }

// Client talks to the question-generation service over its REST surface.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// PageInfo is the page context shipped with start-session. Text longer than
// MaxPageText is truncated before sending.
type PageInfo struct {
	Title string `json:"page_title"`
	URL   string `json:"page_url"`
	Text  string `json:"page_text"`
}

type startSessionRequest struct {
	PageInfo
	Fields            []dom.FieldDescriptor `json:"fields"`
	FieldDescriptions map[string]string     `json:"field_descriptions,omitempty"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary,omitempty"`
}

// StartSession registers a page with the backend and returns the session id
// plus an optional human-readable summary.
func (c *Client) StartSession(ctx context.Context, page PageInfo, fields []dom.FieldDescriptor, descriptions map[string]string) (sessionID, summary string, err error) {
	if len(page.Text) > MaxPageText {
		page.Text = page.Text[:MaxPageText]
	}
	var resp startSessionResponse
	err = c.post(ctx, "/start-session", startSessionRequest{
		PageInfo:          page,
		Fields:            fields,
		FieldDescriptions: descriptions,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.SessionID, resp.Summary, nil
}

type questionRequest struct {
	SessionID   string              `json:"session_id"`
	Field       dom.FieldDescriptor `json:"field"`
	FieldIndex  int                 `json:"field_index"`
	TotalFields int                 `json:"total_fields"`
}

type questionResponse struct {
	Question string `json:"question"`
}

// Question asks for the phrasing of one live-form field. FieldIndex is
// 1-based for progress display.
func (c *Client) Question(ctx context.Context, sessionID string, field dom.FieldDescriptor, fieldIndex, totalFields int) (string, error) {
	var resp questionResponse
	err := c.post(ctx, "/get-question", questionRequest{
		SessionID:   sessionID,
		Field:       field,
		FieldIndex:  fieldIndex,
		TotalFields: totalFields,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Question, nil
}

// RemoteQuestion is one document-mode question as the backend frames it.
type RemoteQuestion struct {
	Text      string        `json:"text"`
	FieldName string        `json:"field_name"`
	FieldType string        `json:"field_type"`
	Options   []interface{} `json:"options,omitempty"`
	Current   int           `json:"current,omitempty"`
	Total     int           `json:"total,omitempty"`
}

// NextQuestionResult is the tri-state reply of next-question: a question,
// completion, or a backend-reported error.
type NextQuestionResult struct {
	Question  *RemoteQuestion `json:"question,omitempty"`
	Completed bool            `json:"completed,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type nextQuestionRequest struct {
	SessionID string `json:"session_id"`
	FieldName string `json:"field_name,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

// NextQuestion drives a remote-document session. With fieldName and answer
// empty it fetches the next pending question; with both set it submits the
// answer and returns the question after it.
func (c *Client) NextQuestion(ctx context.Context, sessionID, fieldName, answer string) (*NextQuestionResult, error) {
	var resp NextQuestionResult
	err := c.post(ctx, "/next-question", nextQuestionRequest{
		SessionID: sessionID,
		FieldName: fieldName,
		Answer:    answer,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("backend rejected the request: %s", resp.Error)
	}
	return &resp, nil
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response      string `json:"response"`
	IsFormCommand bool   `json:"is_form_command,omitempty"`
}

// Chat sends a freeform message. is_form_command signals the caller to
// immediately request the next question.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (string, bool, error) {
	var resp chatResponse
	if err := c.post(ctx, "/chat", chatRequest{SessionID: sessionID, Message: message}, &resp); err != nil {
		return "", false, err
	}
	return resp.Response, resp.IsFormCommand, nil
}

// HealthStatus is the liveness report of the backend and its AI upstream.
type HealthStatus struct {
	Status    string `json:"status"`
	AIService string `json:"ai_service,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// KeyStatus reports whether the backend's AI credentials work.
type KeyStatus struct {
	Valid   bool   `json:"valid"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c *Client) CheckAPIKey(ctx context.Context) (*KeyStatus, error) {
	var resp KeyStatus
	if err := c.get(ctx, "/check-api-key", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
			Keys:   correlation.FromResponse(resp.Header, string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

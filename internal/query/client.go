// Package query holds the single-shot request/response client. Digest
// generation is a stream and lives on the persistent connection; follow-up
// questions and the trending fetch are one request, one reply, and must not
// share the stream's correlation machinery.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/krakenlabs/krakbit/models"
)

// ErrRequestFailed marks a single-shot request that failed on the network or
// returned a non-success status. Callers receive it; session state is never
// mutated on this path.
var ErrRequestFailed = errors.New("query: request failed")

// Client talks to the backend's plain HTTP endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given backend base URL, e.g.
// "http://localhost:8000".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type askRequest struct {
	Question string `json:"question"`
	Content  string `json:"content"`
}

type askResponse struct {
	Response string `json:"response"`
}

// AskQuestion posts a follow-up question together with the accumulated digest
// content and returns the backend's free-text answer.
func (c *Client) AskQuestion(ctx context.Context, question, content string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("query: question must not be empty")
	}
	body, err := json.Marshal(askRequest{Question: question, Content: content})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask_question", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var out askResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

type trendingResponse struct {
	Posts []models.TrendingPost `json:"posts"`
}

// Trending fetches the current trending feed. It is called once per view
// session on startup.
func (c *Client) Trending(ctx context.Context) ([]models.TrendingPost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_x_trending", nil)
	if err != nil {
		return nil, err
	}
	var out trendingResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRequestFailed, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", ErrRequestFailed, req.Method, req.URL.Path, err)
	}
	return nil
}

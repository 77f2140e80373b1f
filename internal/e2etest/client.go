package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/hoerquiz/internal/errors"
)

// Message is the wire form of a chat-log entry. The payload stays raw JSON so
// that tests can decode the variant they expect.
type Message struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Direction string          `json:"direction"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AudioState is the wire form of the audio-player snapshot.
type AudioState struct {
	SourceToken  string    `json:"sourceToken"`
	URL          string    `json:"url"`
	Playing      bool      `json:"playing"`
	Duration     float64   `json:"duration"`
	Position     float64   `json:"position"`
	Progress     *float64  `json:"progress,omitempty"`
	Rate         float64   `json:"rate"`
	Rates        []float64 `json:"rates"`
	RateMenuOpen bool      `json:"rateMenuOpen"`
	Dragging     bool      `json:"dragging"`
}

// Snapshot is the wire form of the session snapshot.
type Snapshot struct {
	SessionID        string     `json:"sessionId"`
	Stage            string     `json:"stage"`
	Topic            string     `json:"topic,omitempty"`
	Mode             string     `json:"mode,omitempty"`
	CurrentQuestion  int        `json:"currentQuestion"`
	QuestionCount    int        `json:"questionCount"`
	WaitingForAnswer bool       `json:"waitingForAnswer"`
	Messages         []Message  `json:"messages"`
	Audio            AudioState `json:"audio"`
}

// Client drives the JSON API like the browser client does, with a cookie jar
// carrying the session cookie between requests.
type Client struct {
	client *http.Client
	url    string
}

// NewClient creates an API client for the server at url.
func NewClient(url string) (*Client, error) {
	jar, err := newUnsafeCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create unsafe cookie jar")
	}
	return &Client{
		client: &http.Client{Jar: jar}, //nolint:exhaustruct // defaults are fine
		url:    url,
	}, nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			c.url+urlPath,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// PostJSON posts body as JSON and returns the response.
func (c *Client) PostJSON(ctx context.Context, urlPath string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+urlPath, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// decodeSnapshot reads a snapshot response body and closes it.
func decodeSnapshot(resp *http.Response) (*Snapshot, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}
	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return &snapshot, nil
}

// Snapshot fetches the current session snapshot.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	resp, err := c.Get(ctx, "/api/session")
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return decodeSnapshot(resp)
}

// ChooseTopic picks the story topic.
func (c *Client) ChooseTopic(ctx context.Context, topic string) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/topic", map[string]string{"topic": topic})
	if err != nil {
		return nil, errors.Wrap(err, "post topic")
	}
	return decodeSnapshot(resp)
}

// ChooseAnswerMode picks the answer mode and triggers story generation.
func (c *Client) ChooseAnswerMode(ctx context.Context, mode string) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/answer-mode", map[string]string{"mode": mode})
	if err != nil {
		return nil, errors.Wrap(err, "post answer mode")
	}
	return decodeSnapshot(resp)
}

// BeginQuestions starts the question loop.
func (c *Client) BeginQuestions(ctx context.Context) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/questions", struct{}{})
	if err != nil {
		return nil, errors.Wrap(err, "post questions")
	}
	return decodeSnapshot(resp)
}

// AnswerChoice submits a choice index for the current question.
func (c *Client) AnswerChoice(ctx context.Context, choice int) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/answer", map[string]int{"choice": choice})
	if err != nil {
		return nil, errors.Wrap(err, "post answer")
	}
	return decodeSnapshot(resp)
}

// AnswerText submits a free-text answer for the current question.
func (c *Client) AnswerText(ctx context.Context, text string) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/answer", map[string]string{"text": text})
	if err != nil {
		return nil, errors.Wrap(err, "post answer")
	}
	return decodeSnapshot(resp)
}

// Restart starts the session over.
func (c *Client) Restart(ctx context.Context) (*Snapshot, error) {
	resp, err := c.PostJSON(ctx, "/api/session/restart", struct{}{})
	if err != nil {
		return nil, errors.Wrap(err, "post restart")
	}
	return decodeSnapshot(resp)
}

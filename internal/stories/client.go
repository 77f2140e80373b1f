// Package stories talks to the story-generation and answer-evaluation
// backends. Both are plain JSON-over-HTTP services; a non-success status and a
// body that does not parse into the expected shape are treated identically as
// a failed call.
package stories

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/myrjola/hoerquiz/internal/errors"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrBackendStatus marks a rejected request or non-success status.
	ErrBackendStatus = errors.NewSentinel("backend returned non-success status")
	// ErrMalformedResponse marks a body that does not conform to the expected shape.
	ErrMalformedResponse = errors.NewSentinel("malformed backend response")
)

// Story is the response of the generate-story call. Question entries may
// arrive as structured objects, as JSON-encoded strings, or as plain strings;
// they stay raw here and are normalized by the quiz package.
type Story struct {
	RequestID string            `json:"requestId"`
	Story     string            `json:"story"`
	Questions []json.RawMessage `json:"questions"`
	AudioURL  string            `json:"audioUrl"`
}

// QuestionAnswer pairs a question with the user's free-text answer for grading.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerEvaluation is the grader's verdict on one answer.
type AnswerEvaluation struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	IsCorrect   bool   `json:"isCorrect"`
	Correction  string `json:"correction"`
	Explanation string `json:"explanation"`
}

// Evaluation is the response of the evaluate-answers call.
type Evaluation struct {
	OverallScore float64            `json:"overallScore"`
	Feedback     string             `json:"feedback"`
	Evaluations  []AnswerEvaluation `json:"evaluations"`
}

type generateStoryRequest struct {
	Topic      string `json:"topic"`
	AnswerType string `json:"answerType"`
}

type evaluateAnswersRequest struct {
	Story     string           `json:"story"`
	Questions []QuestionAnswer `json:"questions"`
}

// Client calls the backends under one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

const requestTimeout = 60 * time.Second // LLM-backed story generation is slow.

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout}, //nolint:exhaustruct // defaults are fine
		logger:     logger.With("source", "stories.Client"),
	}
}

// GenerateStory requests a story with questions for the given topic and
// answer type ("text" or "multiple").
func (c *Client) GenerateStory(ctx context.Context, topic string, answerType string) (*Story, error) {
	var story Story
	req := generateStoryRequest{Topic: topic, AnswerType: answerType}
	if err := c.post(ctx, "/generate-story", req, &story); err != nil {
		return nil, errors.Wrap(err, "generate story", slog.String("topic", topic))
	}
	if story.Story == "" {
		return nil, errors.Wrap(ErrMalformedResponse, "empty story")
	}
	return &story, nil
}

// EvaluateAnswers sends the story and the collected free-text answers to the
// remote grader.
func (c *Client) EvaluateAnswers(ctx context.Context, story string, questions []QuestionAnswer) (*Evaluation, error) {
	var evaluation Evaluation
	req := evaluateAnswersRequest{Story: story, Questions: questions}
	if err := c.post(ctx, "/evaluate-answers", req, &evaluation); err != nil {
		return nil, errors.Wrap(err, "evaluate answers")
	}
	if evaluation.Evaluations == nil {
		return nil, errors.Wrap(ErrMalformedResponse, "missing evaluations")
	}
	return &evaluation, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	var req *http.Request
	if req, err = http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload)); err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var resp *http.Response
	if resp, err = c.httpClient.Do(req); err != nil {
		return errors.Wrap(err, "do request", slog.String("path", path))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.LogAttrs(ctx, slog.LevelError, "close response body", errors.SlogError(closeErr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrap(ErrBackendStatus, "unexpected status",
			slog.String("path", path), slog.Int("status", resp.StatusCode))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(ErrMalformedResponse, "decode response", slog.String("path", path))
	}
	return nil
}

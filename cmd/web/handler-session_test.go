package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/myrjola/hoerquiz/internal/e2etest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLookupEnv(backendURL string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "HOERQUIZ_ADDR":
			return "localhost:0", true
		case "HOERQUIZ_PPROF_PORT":
			return ":0", true
		case "HOERQUIZ_BACKEND_URL":
			return backendURL, true
		case "HOERQUIZ_AUDIO_BASE_URL":
			return "https://media.example.com", true
		default:
			return "", false
		}
	}
}

// stubBackend serves canned generate-story and evaluate-answers responses.
func stubBackend(t *testing.T, storyStatus int, storyBody string, evalStatus int, evalBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-story", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(storyStatus)
		_, err := w.Write([]byte(storyBody))
		assert.NoError(t, err)
	})
	mux.HandleFunc("POST /evaluate-answers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(evalStatus)
		_, err := w.Write([]byte(evalBody))
		assert.NoError(t, err)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

const multipleChoiceStoryBody = `{
	"requestId": "req-1",
	"story": "Am Samstag spielte der SV Blau gegen den FC Rot und gewann mit 2:1.",
	"questions": [
		{"question": "Wer hat gewonnen?", "choices": [
			{"text": "SV Blau", "isCorrect": true},
			{"text": "FC Rot", "isCorrect": false}
		]},
		{"question": "Wann war das Spiel?", "choices": [
			{"text": "Samstag", "isCorrect": true},
			{"text": "Sonntag", "isCorrect": false}
		]}
	],
	"audioUrl": "/audio/req-1.mp3"
}`

const freeTextStoryBody = `{
	"requestId": "req-2",
	"story": "Anna reiste mit dem Zug nach Hamburg.",
	"questions": ["Wohin reiste Anna?", "Womit reiste sie?"],
	"audioUrl": "/audio/req-2.mp3"
}`

// waitForStage polls the session snapshot until the wanted stage is reached.
func waitForStage(t *testing.T, client *e2etest.Client, stage string) *e2etest.Snapshot {
	t.Helper()
	var snapshot *e2etest.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snapshot, err = client.Snapshot(context.Background())
		return err == nil && snapshot.Stage == stage
	}, 5*time.Second, 10*time.Millisecond)
	return snapshot
}

func findMessageText(snapshot *e2etest.Snapshot, kind string) (string, bool) {
	for _, msg := range snapshot.Messages {
		if msg.Kind == kind {
			return msg.Text, true
		}
	}
	return "", false
}

func TestMultipleChoiceRound(t *testing.T) {
	backend := stubBackend(t, http.StatusOK, multipleChoiceStoryBody,
		http.StatusOK, `{"overallScore": 0, "feedback": "", "evaluations": []}`)
	ctx := context.Background()
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)
	client := server.Client()

	snapshot, err := client.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", snapshot.Stage)
	require.Len(t, snapshot.Messages, 1)
	require.Equal(t, "topic-prompt", snapshot.Messages[0].Kind)

	snapshot, err = client.ChooseTopic(ctx, "Sport")
	require.NoError(t, err)
	require.Equal(t, "topic-chosen", snapshot.Stage)

	_, err = client.ChooseAnswerMode(ctx, "multiple")
	require.NoError(t, err)

	snapshot = waitForStage(t, client, "story-ready")
	require.Equal(t, "https://media.example.com/audio/req-1.mp3", snapshot.Audio.URL)
	storyText, ok := findMessageText(snapshot, "story")
	require.True(t, ok)
	require.Contains(t, storyText, "SV Blau")

	snapshot, err = client.BeginQuestions(ctx)
	require.NoError(t, err)
	require.Equal(t, "question-loop", snapshot.Stage)
	require.True(t, snapshot.WaitingForAnswer)
	require.Equal(t, 2, snapshot.QuestionCount)

	// First answer wrong, second correct.
	snapshot, err = client.AnswerChoice(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.CurrentQuestion)
	snapshot, err = client.AnswerChoice(ctx, 0)
	require.NoError(t, err)

	// Multiple-choice scoring is local, so the result is immediate.
	require.Equal(t, "restart-offered", snapshot.Stage)
	summary, ok := findMessageText(snapshot, "evaluation")
	require.True(t, ok)
	require.Equal(t, "Dein Ergebnis: 50% (1 von 2)", summary)

	snapshot, err = client.Restart(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", snapshot.Stage)
	require.Len(t, snapshot.Messages, 1)
}

func TestFreeTextEvaluationFailure(t *testing.T) {
	backend := stubBackend(t, http.StatusOK, freeTextStoryBody,
		http.StatusInternalServerError, `{}`)
	ctx := context.Background()
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)
	client := server.Client()

	_, err = client.ChooseTopic(ctx, "Reisen")
	require.NoError(t, err)
	_, err = client.ChooseAnswerMode(ctx, "text")
	require.NoError(t, err)
	waitForStage(t, client, "story-ready")

	_, err = client.BeginQuestions(ctx)
	require.NoError(t, err)
	_, err = client.AnswerText(ctx, "Nach Hamburg")
	require.NoError(t, err)
	_, err = client.AnswerText(ctx, "Mit dem Zug")
	require.NoError(t, err)

	// The failed grading leaves a single error message and no restart prompt.
	var snapshot *e2etest.Snapshot
	require.Eventually(t, func() bool {
		snapshot, err = client.Snapshot(ctx)
		if err != nil {
			return false
		}
		_, found := findMessageText(snapshot, "error")
		return found
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "all-answered", snapshot.Stage)
	errorText, ok := findMessageText(snapshot, "error")
	require.True(t, ok)
	require.Equal(t, "Bei der Auswertung deiner Antworten ist leider ein Fehler aufgetreten.", errorText)
	_, ok = findMessageText(snapshot, "restart-prompt")
	require.False(t, ok)

	// Restart still leads out of the stalled state.
	snapshot, err = client.Restart(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", snapshot.Stage)
}

func TestGuardedTransitions(t *testing.T) {
	backend := stubBackend(t, http.StatusOK, multipleChoiceStoryBody,
		http.StatusOK, `{"overallScore": 0, "feedback": "", "evaluations": []}`)
	ctx := context.Background()
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)
	client := server.Client()

	snapshot, err := client.ChooseTopic(ctx, "Sport")
	require.NoError(t, err)
	messageCount := len(snapshot.Messages)

	// A repeated topic choice is silently ignored.
	snapshot, err = client.ChooseTopic(ctx, "Reisen")
	require.NoError(t, err)
	require.Equal(t, "Sport", snapshot.Topic)
	require.Len(t, snapshot.Messages, messageCount)

	// An unknown answer mode is rejected as a malformed request.
	resp, err := client.PostJSON(ctx, "/api/session/answer-mode", map[string]string{"mode": "essay"})
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Answering before any question exists is silently ignored.
	snapshot, err = client.AnswerChoice(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "topic-chosen", snapshot.Stage)
}

func TestPlayerEndpoints(t *testing.T) {
	backend := stubBackend(t, http.StatusOK, multipleChoiceStoryBody,
		http.StatusOK, `{"overallScore": 0, "feedback": "", "evaluations": []}`)
	ctx := context.Background()
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)
	client := server.Client()

	_, err = client.ChooseTopic(ctx, "Sport")
	require.NoError(t, err)
	_, err = client.ChooseAnswerMode(ctx, "multiple")
	require.NoError(t, err)
	snapshot := waitForStage(t, client, "story-ready")
	token := snapshot.Audio.SourceToken
	require.NotEmpty(t, token)

	postPlayer := func(urlPath string, body any) *e2etest.Snapshot {
		t.Helper()
		resp, err := client.PostJSON(ctx, urlPath, body)
		require.NoError(t, err)
		defer func() {
			require.NoError(t, resp.Body.Close())
		}()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var s e2etest.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
		return &s
	}

	snapshot = postPlayer("/api/player/toggle", struct{}{})
	require.True(t, snapshot.Audio.Playing)

	snapshot = postPlayer("/api/player/event", map[string]any{
		"type": "metadata", "token": token, "duration": 120.0,
	})
	require.InDelta(t, 120.0, snapshot.Audio.Duration, 1e-9)

	snapshot = postPlayer("/api/player/seek", map[string]any{"fraction": 0.5})
	require.InDelta(t, 60.0, snapshot.Audio.Position, 1e-9)

	snapshot = postPlayer("/api/player/rate", map[string]any{"rate": 1.25})
	require.InDelta(t, 1.25, snapshot.Audio.Rate, 1e-9)

	// Events from a stale source token are dropped.
	snapshot = postPlayer("/api/player/event", map[string]any{
		"type": "timeupdate", "token": "stale-token", "position": 999.0,
	})
	require.InDelta(t, 60.0, snapshot.Audio.Position, 1e-9)

	// Unknown drag phases are malformed requests.
	resp, err := client.PostJSON(ctx, "/api/player/drag", map[string]any{"phase": "hover", "fraction": 0.1})
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamWithoutSession(t *testing.T) {
	backend := stubBackend(t, http.StatusOK, multipleChoiceStoryBody,
		http.StatusOK, `{"overallScore": 0, "feedback": "", "evaluations": []}`)
	ctx := context.Background()
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)

	// A fresh client without a session cookie has nothing to stream.
	fresh, err := e2etest.NewClient(server.URL())
	require.NoError(t, err)
	resp, err := fresh.Get(ctx, "/api/session/stream")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

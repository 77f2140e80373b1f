package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/stories"
)

const maxRequestBody = 256 * 1024

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", r.Method),
		slog.String("uri", r.URL.RequestURI()),
		errors.SlogError(err),
	)

	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// upstreamError reports a failed or malformed model completion.
func (app *application) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "upstream error",
		slog.String("method", r.Method),
		slog.String("uri", r.URL.RequestURI()),
		errors.SlogError(err),
	)

	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(data); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "write response", errors.SlogError(err))
	}
}

func (app *application) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func (app *application) generateStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		AnswerType string `json:"answerType"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if req.Topic == "" || (req.AnswerType != "text" && req.AnswerType != "multiple") {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	story, err := app.generator.GenerateStory(r.Context(), req.Topic, req.AnswerType)
	if err != nil {
		app.upstreamError(w, r, errors.Wrap(err, "generate story"))
		return
	}
	app.writeJSON(w, r, story)
}

func (app *application) evaluateAnswers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Story     string                   `json:"story"`
		Questions []stories.QuestionAnswer `json:"questions"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if req.Questions == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	evaluation, err := app.generator.EvaluateAnswers(r.Context(), req.Story, req.Questions)
	if err != nil {
		app.upstreamError(w, r, errors.Wrap(err, "evaluate answers"))
		return
	}
	app.writeJSON(w, r, evaluation)
}

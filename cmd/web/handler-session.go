package main

import (
	"net/http"

	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/quiz"
	"github.com/myrjola/hoerquiz/internal/random"
)

// quizSessionKey is the session-cookie key holding the practice-session id.
const quizSessionKey = "quizSessionID"

const sessionIDLength = 32

// quizSession resolves the caller's practice session, creating a fresh one on
// the first request.
func (app *application) quizSession(r *http.Request) (*quiz.Session, error) {
	ctx := r.Context()
	id := app.sessionManager.GetString(ctx, quizSessionKey)
	if id == "" {
		var err error
		if id, err = random.Letters(sessionIDLength); err != nil {
			return nil, errors.Wrap(err, "generate session id")
		}
		app.sessionManager.Put(ctx, quizSessionKey, id)
	}
	return app.sessions.Get(id), nil
}

func (app *application) writeSnapshot(w http.ResponseWriter, r *http.Request, session *quiz.Session) {
	app.writeJSON(w, r, http.StatusOK, session.SnapshotState())
}

func (app *application) sessionSnapshot(w http.ResponseWriter, r *http.Request) {
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeSnapshot(w, r, session)
}

func (app *application) chooseTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.ChooseTopic(req.Topic)
	app.writeSnapshot(w, r, session)
}

func (app *application) chooseAnswerMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	mode, ok := quiz.ParseAnswerMode(req.Mode)
	if !ok {
		app.clientError(w, http.StatusBadRequest)
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.ChooseAnswerMode(r.Context(), mode)
	app.writeSnapshot(w, r, session)
}

func (app *application) beginQuestions(w http.ResponseWriter, r *http.Request) {
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.BeginQuestions(r.Context())
	app.writeSnapshot(w, r, session)
}

func (app *application) answer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   *string `json:"text"`
		Choice *int    `json:"choice"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	switch {
	case req.Choice != nil:
		session.AnswerChoice(r.Context(), *req.Choice)
	case req.Text != nil:
		session.AnswerText(r.Context(), *req.Text)
	default:
		app.clientError(w, http.StatusBadRequest)
		return
	}
	app.writeSnapshot(w, r, session)
}

func (app *application) restart(w http.ResponseWriter, r *http.Request) {
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.Restart()
	app.writeSnapshot(w, r, session)
}

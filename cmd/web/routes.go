package main

import (
	"github.com/justinas/alice"
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	dynamic := alice.New(app.sessionManager.LoadAndSave)
	// The SSE stream keeps the connection open, so the session middleware
	// that defers writing the session cookie cannot be used there.
	stream := alice.New(app.loadSessionOnly)

	mux.HandleFunc("GET /api/healthy", app.healthy)

	mux.Handle("GET /api/session", dynamic.ThenFunc(app.sessionSnapshot))
	mux.Handle("GET /api/session/stream", stream.ThenFunc(app.sessionStream))
	mux.Handle("POST /api/session/topic", dynamic.ThenFunc(app.chooseTopic))
	mux.Handle("POST /api/session/answer-mode", dynamic.ThenFunc(app.chooseAnswerMode))
	mux.Handle("POST /api/session/questions", dynamic.ThenFunc(app.beginQuestions))
	mux.Handle("POST /api/session/answer", dynamic.ThenFunc(app.answer))
	mux.Handle("POST /api/session/restart", dynamic.ThenFunc(app.restart))

	mux.Handle("POST /api/player/toggle", dynamic.ThenFunc(app.playerToggle))
	mux.Handle("POST /api/player/seek", dynamic.ThenFunc(app.playerSeek))
	mux.Handle("POST /api/player/drag", dynamic.ThenFunc(app.playerDrag))
	mux.Handle("POST /api/player/rate", dynamic.ThenFunc(app.playerRate))
	mux.Handle("POST /api/player/rate-menu", dynamic.ThenFunc(app.playerRateMenu))
	mux.Handle("POST /api/player/event", dynamic.ThenFunc(app.playerEvent))

	return app.recoverPanic(app.logRequest(secureHeaders(noSurf(mux))))
}

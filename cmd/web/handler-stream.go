package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/myrjola/hoerquiz/internal/errors"
)

// sessionStream notifies the client over server-sent events when an async
// backend call resolves. The subscription channel appears once a producer
// publishes it; a closed broker or finished producer ends the stream and the
// client falls back to refetching the snapshot.
func (app *application) sessionStream(w http.ResponseWriter, r *http.Request) {
	id := app.sessionManager.GetString(r.Context(), quizSessionKey)
	if id == "" {
		// No practice session yet, nothing will ever be streamed.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.serverError(w, r, errors.New("streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	subscription := app.logBroker.Subscribe(id)

	select {
	case <-r.Context().Done():
		return
	case channel, open := <-subscription:
		if !open {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case msg, more := <-channel:
				if !more {
					fmt.Fprint(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					app.logger.LogAttrs(r.Context(), slog.LevelError, "marshal stream message", errors.SlogError(err))
					continue
				}
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

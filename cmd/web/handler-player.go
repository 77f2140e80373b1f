package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/hoerquiz/internal/audio"
)

func (app *application) playerToggle(w http.ResponseWriter, r *http.Request) {
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.UpdatePlayer(func(p *audio.Player) {
		p.TogglePlayback()
	})
	app.writeSnapshot(w, r, session)
}

func (app *application) playerSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fraction *float64 `json:"fraction"`
		Offset   *float64 `json:"offset"`
		Width    *float64 `json:"width"`
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
	case req.Fraction != nil:
		session.UpdatePlayer(func(p *audio.Player) {
			p.SeekTo(*req.Fraction)
		})
	case req.Offset != nil && req.Width != nil:
		session.UpdatePlayer(func(p *audio.Player) {
			p.SeekClick(*req.Offset, *req.Width)
		})
	default:
		app.clientError(w, http.StatusBadRequest)
		return
	}
	app.writeSnapshot(w, r, session)
}

func (app *application) playerDrag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phase    string  `json:"phase"`
		Fraction float64 `json:"fraction"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	var badPhase bool
	session.UpdatePlayer(func(p *audio.Player) {
		switch req.Phase {
		case "start":
			p.DragStart(req.Fraction)
		case "move":
			p.DragMove(req.Fraction)
		case "end":
			p.DragEnd(req.Fraction)
		case "cancel":
			p.DragCancel()
		default:
			badPhase = true
		}
	})
	if badPhase {
		app.clientError(w, http.StatusBadRequest)
		return
	}
	app.writeSnapshot(w, r, session)
}

func (app *application) playerRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.UpdatePlayer(func(p *audio.Player) {
		p.SetRate(req.Rate)
	})
	app.writeSnapshot(w, r, session)
}

func (app *application) playerRateMenu(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open bool `json:"open"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	session.UpdatePlayer(func(p *audio.Player) {
		p.SetRateMenu(req.Open)
	})
	app.writeSnapshot(w, r, session)
}

// playerEvent relays media-element events from the client. Events carry the
// source token of the audio source they belong to so that events from an
// already replaced source are dropped.
func (app *application) playerEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string  `json:"type"`
		Token    string  `json:"token"`
		Duration float64 `json:"duration"`
		Position float64 `json:"position"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	session, err := app.quizSession(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	var badType bool
	session.UpdatePlayer(func(p *audio.Player) {
		switch req.Type {
		case "metadata":
			p.MetadataLoaded(req.Token, req.Duration)
		case "timeupdate":
			p.TimeUpdate(req.Token, req.Position)
		case "ended":
			p.Ended(req.Token)
		case "playfailure":
			app.logger.LogAttrs(r.Context(), slog.LevelDebug, "audio playback failed",
				slog.String("token", req.Token))
			p.PlayFailure(req.Token)
		default:
			badType = true
		}
	})
	if badType {
		app.clientError(w, http.StatusBadRequest)
		return
	}
	app.writeSnapshot(w, r, session)
}

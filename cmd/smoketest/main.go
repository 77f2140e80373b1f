package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/hoerquiz/internal/e2etest"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/logging"
)

// TestRound drives a full multiple-choice round against a deployed server.
func TestRound(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute) //nolint:mnd // story generation is slow
	defer cancel()
	var err error

	var snapshot *e2etest.Snapshot
	if snapshot, err = client.Snapshot(ctx); err != nil {
		return errors.Wrap(err, "fetch snapshot")
	}
	if snapshot.Stage != "idle" {
		return errors.New("unexpected initial stage", slog.String("stage", snapshot.Stage))
	}

	if _, err = client.ChooseTopic(ctx, "Sport"); err != nil {
		return errors.Wrap(err, "choose topic")
	}
	if _, err = client.ChooseAnswerMode(ctx, "multiple"); err != nil {
		return errors.Wrap(err, "choose answer mode")
	}

	for {
		if snapshot, err = client.Snapshot(ctx); err != nil {
			return errors.Wrap(err, "poll snapshot")
		}
		if snapshot.Stage == "story-ready" {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for story")
		case <-time.After(time.Second):
		}
	}

	if snapshot, err = client.BeginQuestions(ctx); err != nil {
		return errors.Wrap(err, "begin questions")
	}
	for snapshot.WaitingForAnswer {
		if snapshot, err = client.AnswerChoice(ctx, 0); err != nil {
			return errors.Wrap(err, "answer question")
		}
	}

	if snapshot.Stage != "restart-offered" {
		return errors.New("round did not finish", slog.String("stage", snapshot.Stage))
	}
	if _, err = client.Restart(ctx); err != nil {
		return errors.Wrap(err, "restart")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestRound(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing practice round", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}

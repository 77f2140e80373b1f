// Command storyserver is the backend for story generation and answer grading.
// It produces a story with comprehension questions for a topic and grades
// free-text answers. Speech synthesis runs in a separate pipeline; the server
// only returns the path under which the synthesized audio is published.
//
// Without an OPENAI_API_KEY the server falls back to canned stories, which is
// handy for local development of the web frontend.
package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/hoerquiz/internal/ai"
	"github.com/myrjola/hoerquiz/internal/envstruct"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/logging"
)

type application struct {
	logger    *slog.Logger
	generator generator
}

type configuration struct {
	Addr string `env:"STORYSERVER_ADDR" envDefault:"localhost:5000"`
	// OpenAIModel must support JSON-constrained responses.
	OpenAIModel string `env:"STORYSERVER_OPENAI_MODEL" envDefault:"gpt-3.5-turbo-1106"`
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{ //nolint:exhaustruct // defaults are fine
		Level:     slog.LevelDebug,
		AddSource: true,
	}))
	logger := slog.New(loggerHandler)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server error", errors.SlogError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg configuration
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "parse configuration")
	}

	var gen generator
	if ai.Configured() {
		gen = newLLMGenerator(ai.NewClient(), cfg.OpenAIModel, logger)
	} else {
		logger.LogAttrs(ctx, slog.LevelInfo, "OPENAI_API_KEY not set, serving canned stories")
		gen = cannedGenerator{}
	}

	app := &application{
		logger:    logger,
		generator: gen,
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

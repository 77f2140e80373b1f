package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/joho/godotenv"
	"github.com/myrjola/hoerquiz/internal/broker"
	"github.com/myrjola/hoerquiz/internal/chatlog"
	"github.com/myrjola/hoerquiz/internal/envstruct"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/logging"
	"github.com/myrjola/hoerquiz/internal/pprofserver"
	"github.com/myrjola/hoerquiz/internal/quiz"
	"github.com/myrjola/hoerquiz/internal/stories"
)

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager
	sessions       *quiz.Store
	logBroker      *broker.ChannelBroker[string, chatlog.Message]
}

type configuration struct {
	// Addr is the address the server listens on. Use port 0 to let the OS
	// allocate one, e.g. in tests.
	Addr string `env:"HOERQUIZ_ADDR" envDefault:"localhost:4000"`
	// PprofPort is the localhost port for the pprof server.
	PprofPort string `env:"HOERQUIZ_PPROF_PORT" envDefault:":6060"`
	// BackendURL is the base URL of the story-generation and
	// answer-evaluation backend.
	BackendURL string `env:"HOERQUIZ_BACKEND_URL" envDefault:"http://localhost:5000"`
	// AudioBaseURL resolves relative audio URLs returned by the backend.
	AudioBaseURL string `env:"HOERQUIZ_AUDIO_BASE_URL" envDefault:"http://localhost:5000"`
	// PlaybackRates is the comma-separated fixed set of playback multipliers.
	PlaybackRates string `env:"HOERQUIZ_PLAYBACK_RATES" envDefault:"0.5,0.75,1,1.25,1.5"`
}

const sessionLifetime = 12 * time.Hour

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
	rates, err := parsePlaybackRates(cfg.PlaybackRates)
	if err != nil {
		return err
	}

	// Initialise pprof listening on localhost so that it's not open to the world.
	pprofserver.Launch(cfg.PprofPort, logger)

	sessionManager := scs.New()
	// All session state is in memory; a server restart resets every session.
	sessionManager.Store = memstore.New()
	sessionManager.Lifetime = sessionLifetime

	logBroker := broker.NewChannelBroker[string, chatlog.Message]()
	go logBroker.Start()
	defer logBroker.Stop()

	backend := stories.NewClient(cfg.BackendURL, logger)
	sessionStore := quiz.NewStore(backend, logBroker, cfg.AudioBaseURL, rates, logger)

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go sessionStore.SweepPeriodically(time.Hour, sessionLifetime, sweepStop)

	app := &application{
		logger:         logger,
		sessionManager: sessionManager,
		sessions:       sessionStore,
		logBroker:      logBroker,
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

func parsePlaybackRates(rates string) ([]float64, error) {
	parts := strings.Split(rates, ",")
	parsed := make([]float64, 0, len(parts))
	for _, part := range parts {
		rate, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse playback rate", slog.String("rate", part))
		}
		parsed = append(parsed, rate)
	}
	return parsed, nil
}

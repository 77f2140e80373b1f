// Package practice runs a listening practice round in the terminal. It drives
// the same session state machine as the web frontend, minus the audio player.
package practice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/myrjola/hoerquiz/internal/chatlog"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/quiz"
	"github.com/myrjola/hoerquiz/internal/stories"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "practice",
	Title: "Practice",
}

var Topics = &cobra.Command{ //nolint:exhaustruct // defaults are fine
	Use:     "topics",
	GroupID: "practice",
	Short:   "List the available story topics",
	Run: func(cmd *cobra.Command, _ []string) {
		for _, topic := range quiz.Topics() {
			cmd.Println(topic)
		}
	},
}

var backendURL string

var Round = &cobra.Command{ //nolint:exhaustruct // defaults are fine
	Use:     "practice",
	GroupID: "practice",
	Short:   "Run a listening practice round in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRound(cmd.Context(), backendURL, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	Round.Flags().StringVar(&backendURL, "backend-url", "http://localhost:5000",
		"base URL of the story backend")
}

// resolveTimeout bounds how long we wait for a backend call to resolve.
const resolveTimeout = 90 * time.Second

func runRound(ctx context.Context, backendURL string, in io.Reader, out io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{ //nolint:exhaustruct // defaults are fine
		Level: slog.LevelWarn,
	}))
	backend := stories.NewClient(backendURL, logger)
	session := quiz.NewSession("cli", backend, nil, backendURL, []float64{1}, logger)
	scanner := bufio.NewScanner(in)
	seen := make(map[string]bool)

	render(out, seen, session.SnapshotState())

	// Topic choice, by number or by name.
	for session.SnapshotState().Stage == quiz.StageIdle {
		input, err := readLine(scanner)
		if err != nil {
			return err
		}
		topics := quiz.Topics()
		if n, convErr := strconv.Atoi(input); convErr == nil && n >= 1 && n <= len(topics) {
			input = topics[n-1]
		}
		session.ChooseTopic(input)
		if session.SnapshotState().Stage == quiz.StageIdle {
			fmt.Fprintln(out, "Unbekanntes Thema, bitte noch einmal.")
		}
	}
	render(out, seen, session.SnapshotState())

	// Answer mode.
	for session.SnapshotState().Stage == quiz.StageTopicChosen {
		fmt.Fprintln(out, "  1) frei antworten")
		fmt.Fprintln(out, "  2) Antwortmöglichkeiten")
		input, err := readLine(scanner)
		if err != nil {
			return err
		}
		switch input {
		case "1", string(quiz.AnswerModeFreeText):
			session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
		case "2", string(quiz.AnswerModeMultipleChoice):
			session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
		}
	}
	render(out, seen, session.SnapshotState())

	if err := waitForStage(out, seen, session, quiz.StageStoryReady); err != nil {
		return err
	}

	session.BeginQuestions(ctx)
	snapshot := session.SnapshotState()
	render(out, seen, snapshot)
	for snapshot.WaitingForAnswer {
		input, err := readLine(scanner)
		if err != nil {
			return err
		}
		if snapshot.Mode == quiz.AnswerModeMultipleChoice {
			if n, convErr := strconv.Atoi(input); convErr == nil {
				session.AnswerChoice(ctx, n-1)
			}
		} else {
			session.AnswerText(ctx, input)
		}
		snapshot = session.SnapshotState()
		render(out, seen, snapshot)
	}

	return waitForStage(out, seen, session, quiz.StageRestartOffered)
}

// waitForStage polls until the session reaches the wanted stage or reports a
// backend error.
func waitForStage(out io.Writer, seen map[string]bool, session *quiz.Session, stage quiz.Stage) error {
	deadline := time.Now().Add(resolveTimeout)
	for {
		snapshot := session.SnapshotState()
		if snapshot.Stage == stage {
			render(out, seen, snapshot)
			return nil
		}
		for _, msg := range snapshot.Messages {
			if msg.Kind == chatlog.KindError {
				render(out, seen, snapshot)
				return errors.New("backend call failed", slog.String("message", msg.Text))
			}
		}
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for backend")
		}
		time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
	}
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errors.Wrap(err, "read input")
		}
		return "", errors.Wrap(io.EOF, "input closed")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// render prints the log messages that have not been shown yet. Resolved
// loading placeholders get fresh IDs, so a plain seen-set suffices.
func render(out io.Writer, seen map[string]bool, snapshot quiz.Snapshot) {
	for _, msg := range snapshot.Messages {
		if seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		if msg.Direction == chatlog.DirectionSent {
			fmt.Fprintf(out, "> %s\n", msg.Text)
			continue
		}
		fmt.Fprintln(out, msg.Text)
		switch payload := msg.Payload.(type) {
		case chatlog.TopicPromptPayload:
			for i, topic := range payload.Topics {
				fmt.Fprintf(out, "  %d) %s\n", i+1, topic)
			}
		case chatlog.QuestionPayload:
			for i, choice := range payload.Choices {
				fmt.Fprintf(out, "  %d) %s\n", i+1, choice)
			}
		case chatlog.StoryPayload:
			fmt.Fprintf(out, "  Audio: %s\n", payload.AudioURL)
		}
	}
}

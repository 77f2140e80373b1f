package quiz_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/hoerquiz/internal/chatlog"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/quiz"
	"github.com/myrjola/hoerquiz/internal/stories"
	"github.com/myrjola/hoerquiz/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a controllable Backend double. When block is non-nil,
// GenerateStory waits until it is closed.
type fakeBackend struct {
	mu         sync.Mutex
	story      *stories.Story
	storyErr   error
	evaluation *stories.Evaluation
	evalErr    error
	block      chan struct{}

	evaluateCalls [][]stories.QuestionAnswer
}

func (f *fakeBackend) GenerateStory(_ context.Context, _ string, _ string) (*stories.Story, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storyErr != nil {
		return nil, f.storyErr
	}
	return f.story, nil
}

func (f *fakeBackend) EvaluateAnswers(
	_ context.Context, _ string, questions []stories.QuestionAnswer,
) (*stories.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluateCalls = append(f.evaluateCalls, questions)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.evaluation, nil
}

func multipleChoiceStory() *stories.Story {
	return &stories.Story{
		RequestID: "req-1",
		Story:     "Am Samstag spielte der SV Blau gegen den FC Rot und gewann klar.",
		Questions: []json.RawMessage{
			json.RawMessage(`{"question":"Wer hat gewonnen?","choices":[{"text":"SV Blau","isCorrect":true},{"text":"FC Rot","isCorrect":false}]}`),
			json.RawMessage(`{"question":"Wann war das Spiel?","choices":[{"text":"Sonntag","isCorrect":false},{"text":"Samstag","isCorrect":true}]}`),
		},
		AudioURL: "audio/req-1.mp3",
	}
}

func freeTextStory() *stories.Story {
	return &stories.Story{
		RequestID: "req-2",
		Story:     "Lena reiste mit dem Zug nach Wien und besuchte den Prater.",
		Questions: []json.RawMessage{
			json.RawMessage(`"Wohin reiste Lena?"`),
			json.RawMessage(`"Was besuchte sie dort?"`),
		},
		AudioURL: "audio/req-2.mp3",
	}
}

func newTestSession(t *testing.T, backend quiz.Backend) *quiz.Session {
	t.Helper()
	return quiz.NewSession("test-session", backend, nil, "https://media.example.com",
		[]float64{0.75, 1, 1.25}, testhelpers.NewLogger(io.Discard))
}

func waitForStage(t *testing.T, session *quiz.Session, stage quiz.Stage) {
	t.Helper()
	require.Eventually(t, func() bool {
		return session.SnapshotState().Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "session never reached stage %s", stage)
}

func messageTexts(snapshot quiz.Snapshot) []string {
	texts := make([]string, len(snapshot.Messages))
	for i, msg := range snapshot.Messages {
		texts[i] = msg.Text
	}
	return texts
}

func countKind(snapshot quiz.Snapshot, kind chatlog.Kind) int {
	n := 0
	for _, msg := range snapshot.Messages {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

func TestMultipleChoiceRound(t *testing.T) {
	backend := &fakeBackend{story: multipleChoiceStory()} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	snapshot := session.SnapshotState()
	require.Equal(t, quiz.StageIdle, snapshot.Stage)
	require.Equal(t, -1, snapshot.CurrentQuestion)
	require.Equal(t, chatlog.KindTopicPrompt, snapshot.Messages[0].Kind)

	session.ChooseTopic("Sport")
	snapshot = session.SnapshotState()
	require.Equal(t, quiz.StageTopicChosen, snapshot.Stage)
	require.Contains(t, messageTexts(snapshot), "Sport")
	require.Equal(t, 1, countKind(snapshot, chatlog.KindAnswerTypePrompt))

	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
	waitForStage(t, session, quiz.StageStoryReady)
	snapshot = session.SnapshotState()
	require.Equal(t, 1, countKind(snapshot, chatlog.KindStory))
	require.Equal(t, "https://media.example.com/audio/req-1.mp3", snapshot.Audio.URL,
		"relative audio URL resolves against the base location")

	session.BeginQuestions(ctx)
	snapshot = session.SnapshotState()
	require.Equal(t, quiz.StageQuestionLoop, snapshot.Stage)
	require.Equal(t, 0, snapshot.CurrentQuestion)
	require.True(t, snapshot.WaitingForAnswer)
	require.Equal(t, 1, countKind(snapshot, chatlog.KindQuestion))

	// Question 1 answered incorrectly, question 2 correctly.
	session.AnswerChoice(ctx, 1)
	snapshot = session.SnapshotState()
	require.Equal(t, 1, snapshot.CurrentQuestion)
	session.AnswerChoice(ctx, 1)

	snapshot = session.SnapshotState()
	require.Equal(t, quiz.StageRestartOffered, snapshot.Stage)
	require.False(t, snapshot.WaitingForAnswer)
	require.Contains(t, messageTexts(snapshot), "Dein Ergebnis: 50% (1 von 2)")
	require.Equal(t, 1, countKind(snapshot, chatlog.KindRestartPrompt))

	// One detail message for the one incorrect answer, showing both texts.
	details := 0
	for _, msg := range snapshot.Messages {
		payload, ok := msg.Payload.(chatlog.EvaluationPayload)
		if !ok || payload.Summary {
			continue
		}
		details++
		require.Equal(t, "FC Rot", payload.Answer)
		require.Equal(t, "SV Blau", payload.Correction)
	}
	require.Equal(t, 1, details)
}

func TestGuardIdempotence(t *testing.T) {
	backend := &fakeBackend{story: multipleChoiceStory()} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Sport")
	before := session.SnapshotState()
	session.ChooseTopic("Sport")
	session.ChooseTopic("Reisen")
	require.Equal(t, before.Messages, session.SnapshotState().Messages,
		"repeated topic choice must not append messages")
	require.Equal(t, "Sport", session.SnapshotState().Topic)

	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
	waitForStage(t, session, quiz.StageStoryReady)
	before = session.SnapshotState()
	session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
	require.Equal(t, before.Messages, session.SnapshotState().Messages,
		"repeated answer-mode choice must not append messages")
	require.Equal(t, quiz.AnswerModeMultipleChoice, session.SnapshotState().Mode)

	session.BeginQuestions(ctx)
	before = session.SnapshotState()
	session.BeginQuestions(ctx)
	require.Equal(t, before.Messages, session.SnapshotState().Messages,
		"repeated begin-questions must not append messages")
	require.Equal(t, 0, before.CurrentQuestion)
}

func TestAnswerValidation(t *testing.T) {
	backend := &fakeBackend{story: multipleChoiceStory()} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	// Answers while not awaiting one are ignored.
	session.AnswerChoice(ctx, 0)
	session.AnswerText(ctx, "hallo")
	require.Equal(t, quiz.StageIdle, session.SnapshotState().Stage)

	session.ChooseTopic("Sport")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
	waitForStage(t, session, quiz.StageStoryReady)
	session.BeginQuestions(ctx)

	before := session.SnapshotState()
	// Out-of-range indices and free-text input in multiple-choice mode are no-ops.
	session.AnswerChoice(ctx, -1)
	session.AnswerChoice(ctx, 5)
	session.AnswerText(ctx, "SV Blau")
	require.Equal(t, before.Messages, session.SnapshotState().Messages)
	require.Equal(t, 0, session.SnapshotState().CurrentQuestion)
}

func TestFreeTextEmptyAnswerIgnored(t *testing.T) {
	backend := &fakeBackend{story: freeTextStory()} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Reisen")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
	waitForStage(t, session, quiz.StageStoryReady)
	session.BeginQuestions(ctx)

	before := session.SnapshotState()
	session.AnswerText(ctx, "   \t  ")
	require.Equal(t, before.Messages, session.SnapshotState().Messages,
		"whitespace-only answers are rejected without a message")
	require.Equal(t, 0, session.SnapshotState().CurrentQuestion)
}

func TestCurrentQuestionMonotonic(t *testing.T) {
	backend := &fakeBackend{ //nolint:exhaustruct // defaults suffice
		story:      freeTextStory(),
		evaluation: &stories.Evaluation{OverallScore: 100, Feedback: "", Evaluations: []stories.AnswerEvaluation{}},
	}
	session := newTestSession(t, backend)
	ctx := context.Background()

	last := session.SnapshotState().CurrentQuestion
	observe := func() {
		current := session.SnapshotState().CurrentQuestion
		require.GreaterOrEqual(t, current, last)
		require.GreaterOrEqual(t, current, -1)
		require.LessOrEqual(t, current, 2)
		last = current
	}

	session.ChooseTopic("Reisen")
	observe()
	session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
	waitForStage(t, session, quiz.StageStoryReady)
	observe()
	session.BeginQuestions(ctx)
	observe()
	session.AnswerText(ctx, "Nach Wien")
	observe()
	session.AnswerText(ctx, "Den Prater")
	observe()
	require.Equal(t, 2, last, "index ends at questions.length")
}

func TestFreeTextEvaluationSuccess(t *testing.T) {
	backend := &fakeBackend{ //nolint:exhaustruct // defaults suffice
		story: freeTextStory(),
		evaluation: &stories.Evaluation{
			OverallScore: 75,
			Feedback:     "Gut gemacht.",
			Evaluations: []stories.AnswerEvaluation{
				{Question: "Wohin reiste Lena?", Answer: "Nach Wien", IsCorrect: true, Correction: "", Explanation: ""},
				{
					Question:    "Was besuchte sie dort?",
					Answer:      "Ein Museum",
					IsCorrect:   false,
					Correction:  "Den Prater",
					Explanation: "Lena besuchte den Prater.",
				},
			},
		},
	}
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Reisen")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
	waitForStage(t, session, quiz.StageStoryReady)
	session.BeginQuestions(ctx)
	session.AnswerText(ctx, "Nach Wien")
	session.AnswerText(ctx, "Ein Museum")

	waitForStage(t, session, quiz.StageRestartOffered)
	snapshot := session.SnapshotState()
	require.False(t, snapshot.Audio.Dragging)
	require.Equal(t, 3, countKind(snapshot, chatlog.KindEvaluation), "one message per question plus a summary")
	require.Contains(t, messageTexts(snapshot), "Dein Ergebnis: 75%. Gut gemacht.")
	require.Equal(t, 1, countKind(snapshot, chatlog.KindRestartPrompt))

	// The grader received the full question and answer pairs.
	require.Len(t, backend.evaluateCalls, 1)
	require.Equal(t, []stories.QuestionAnswer{
		{Question: "Wohin reiste Lena?", Answer: "Nach Wien"},
		{Question: "Was besuchte sie dort?", Answer: "Ein Museum"},
	}, backend.evaluateCalls[0])
}

func TestFreeTextEvaluationFailure(t *testing.T) {
	backend := &fakeBackend{ //nolint:exhaustruct // defaults suffice
		story:   freeTextStory(),
		evalErr: errors.NewSentinel("backend down"),
	}
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Reisen")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeFreeText)
	waitForStage(t, session, quiz.StageStoryReady)
	session.BeginQuestions(ctx)
	session.AnswerText(ctx, "Nach Wien")
	session.AnswerText(ctx, "Den Prater")

	require.Eventually(t, func() bool {
		return countKind(session.SnapshotState(), chatlog.KindError) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snapshot := session.SnapshotState()
	require.Equal(t, 1, countKind(snapshot, chatlog.KindError), "exactly one error message")
	require.Equal(t, 0, countKind(snapshot, chatlog.KindRestartPrompt), "no restart prompt after a failed evaluation")
	require.Equal(t, 0, countKind(snapshot, chatlog.KindEvaluation), "no partial results")
	for _, msg := range snapshot.Messages {
		require.NotEqual(t, chatlog.LoadingID, msg.ID, "loading state cleared")
	}
}

func TestStoryGenerationFailure(t *testing.T) {
	backend := &fakeBackend{storyErr: errors.NewSentinel("boom")} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Sport")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)

	require.Eventually(t, func() bool {
		return countKind(session.SnapshotState(), chatlog.KindError) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snapshot := session.SnapshotState()
	require.Equal(t, quiz.StageAnswerModeChosen, snapshot.Stage, "session stalls until restart")
	for _, msg := range snapshot.Messages {
		require.NotEqual(t, chatlog.LoadingID, msg.ID)
	}

	// Only the restart leads out of the dead end.
	session.Restart()
	snapshot = session.SnapshotState()
	require.Equal(t, quiz.StageIdle, snapshot.Stage)
	require.Len(t, snapshot.Messages, 1)
}

func TestLoadingResolutionIsAtomic(t *testing.T) {
	backend := &fakeBackend{ //nolint:exhaustruct // defaults suffice
		story: multipleChoiceStory(),
		block: make(chan struct{}),
	}
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Sport")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)

	hasLoading := func(snapshot quiz.Snapshot) bool {
		for _, msg := range snapshot.Messages {
			if msg.ID == chatlog.LoadingID {
				return true
			}
		}
		return false
	}

	// While the call is in flight, the placeholder is visible and no story is.
	snapshot := session.SnapshotState()
	require.True(t, hasLoading(snapshot))
	require.Equal(t, 0, countKind(snapshot, chatlog.KindStory))

	close(backend.block)

	// Every observable snapshot shows either the placeholder or the story,
	// never both and never neither.
	require.Eventually(t, func() bool {
		snapshot := session.SnapshotState()
		loading := hasLoading(snapshot)
		story := countKind(snapshot, chatlog.KindStory) == 1
		require.NotEqual(t, loading, story, "loading placeholder and resolution must swap atomically")
		return story
	}, 2*time.Second, time.Millisecond)
}

func TestStaleStoryResponseAfterRestart(t *testing.T) {
	backend := &fakeBackend{ //nolint:exhaustruct // defaults suffice
		story: multipleChoiceStory(),
		block: make(chan struct{}),
	}
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Sport")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
	session.Restart()

	close(backend.block)

	// The late response targets a discarded generation and must be dropped.
	time.Sleep(50 * time.Millisecond)
	snapshot := session.SnapshotState()
	require.Equal(t, quiz.StageIdle, snapshot.Stage)
	require.Len(t, snapshot.Messages, 1)
	require.Equal(t, chatlog.KindTopicPrompt, snapshot.Messages[0].Kind)
}

func TestRestartResetsEverything(t *testing.T) {
	backend := &fakeBackend{story: multipleChoiceStory()} //nolint:exhaustruct // defaults suffice
	session := newTestSession(t, backend)
	ctx := context.Background()

	session.ChooseTopic("Sport")
	session.ChooseAnswerMode(ctx, quiz.AnswerModeMultipleChoice)
	waitForStage(t, session, quiz.StageStoryReady)
	session.BeginQuestions(ctx)
	session.AnswerChoice(ctx, 0)

	session.Restart()

	snapshot := session.SnapshotState()
	require.Equal(t, quiz.StageIdle, snapshot.Stage)
	require.Equal(t, -1, snapshot.CurrentQuestion)
	require.Empty(t, snapshot.Topic)
	require.Empty(t, snapshot.Audio.URL, "audio source is discarded with the session")

	// The guards are fresh again: a new round works.
	session.ChooseTopic("Musik")
	require.Equal(t, quiz.StageTopicChosen, session.SnapshotState().Stage)
}

func TestStoreCreatesAndSweeps(t *testing.T) {
	backend := &fakeBackend{story: multipleChoiceStory()} //nolint:exhaustruct // defaults suffice
	store := quiz.NewStore(backend, nil, "https://media.example.com", []float64{1},
		testhelpers.NewLogger(io.Discard))

	first := store.Get("a")
	require.Same(t, first, store.Get("a"), "same token yields the same session")
	store.Get("b")
	require.Equal(t, 2, store.Len())

	store.Sweep(0)
	require.Equal(t, 0, store.Len())

	// A swept token starts over with a fresh session.
	require.NotSame(t, first, store.Get("a"))
}

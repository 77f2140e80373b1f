package quiz

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/hoerquiz/internal/audio"
	"github.com/myrjola/hoerquiz/internal/chatlog"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/stories"
)

// Backend generates stories and grades free-text answers. Both calls may take
// long and are invoked off the request path.
type Backend interface {
	GenerateStory(ctx context.Context, topic string, answerType string) (*stories.Story, error)
	EvaluateAnswers(ctx context.Context, story string, questions []stories.QuestionAnswer) (*stories.Evaluation, error)
}

// Broker hands per-session channels of freshly resolved messages to stream
// consumers, see [broker.ChannelBroker]. It may be nil when streaming is not
// wired up, e.g. in tests.
type Broker interface {
	Publish(id string, channel chan chatlog.Message)
	Unpublish(id string)
}

// brokerBuffer bounds how many resolution messages a producer can hand to a
// slow or absent stream consumer without blocking.
const brokerBuffer = 16

// Session is one user's practice session. All state transitions go through
// its mutex; the message log and the audio player are exclusively owned by
// the session and only reachable through snapshots or locked callbacks.
type Session struct {
	mu     sync.Mutex
	id     string
	logger *slog.Logger

	backend      Backend
	broker       Broker
	audioBaseURL string
	rates        []float64

	log    *chatlog.Log
	player *audio.Player

	stage       Stage
	topic       string
	mode        AnswerMode
	story       *stories.Story
	questions   []Question
	current     int
	selected    map[int]int
	textAnswers map[int]string
	answered    map[int]bool
	waiting     bool

	// generation changes on every restart so that late completions targeting
	// a discarded session state are detected and dropped.
	generation       uint64
	pendingRequestID string

	lastActive time.Time
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	ID               string            `json:"sessionId"`
	Stage            Stage             `json:"stage"`
	Topic            string            `json:"topic,omitempty"`
	Mode             AnswerMode        `json:"mode,omitempty"`
	CurrentQuestion  int               `json:"currentQuestion"`
	QuestionCount    int               `json:"questionCount"`
	WaitingForAnswer bool              `json:"waitingForAnswer"`
	Messages         []chatlog.Message `json:"messages"`
	Audio            audio.Snapshot    `json:"audio"`
}

// NewSession creates a session in the idle stage with the topic prompt as the
// first log entry.
func NewSession(
	id string,
	backend Backend,
	broker Broker,
	audioBaseURL string,
	rates []float64,
	logger *slog.Logger,
) *Session {
	s := &Session{ //nolint:exhaustruct // remaining state is set by resetLocked
		id:           id,
		logger:       logger.With("source", "quiz.Session", "session_id", id),
		backend:      backend,
		broker:       broker,
		audioBaseURL: audioBaseURL,
		rates:        rates,
	}
	s.resetLocked()
	return s
}

// resetLocked discards all session state. Callers must hold the lock except
// during construction.
func (s *Session) resetLocked() {
	s.generation++
	s.pendingRequestID = ""
	s.log = chatlog.New()
	s.player = audio.NewPlayer(s.audioBaseURL, s.rates)
	s.stage = StageIdle
	s.topic = ""
	s.mode = ""
	s.story = nil
	s.questions = nil
	s.current = -1
	s.selected = make(map[int]int)
	s.textAnswers = make(map[int]string)
	s.answered = make(map[int]bool)
	s.waiting = false
	s.lastActive = time.Now()
	s.log.Append(chatlog.KindTopicPrompt, chatlog.DirectionReceived, topicPromptText,
		chatlog.TopicPromptPayload{Topics: Topics()})
}

func (s *Session) touch() {
	s.lastActive = time.Now()
}

// ChooseTopic picks the story topic. Valid only in the idle stage; repeated
// or unknown choices are silently ignored.
func (s *Session) ChooseTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.stage != StageIdle || !ValidTopic(topic) {
		return
	}
	s.topic = topic
	s.log.Append(chatlog.KindPlain, chatlog.DirectionSent, topic, nil)
	s.log.Append(chatlog.KindAnswerTypePrompt, chatlog.DirectionReceived, answerTypePromptText,
		chatlog.AnswerTypePromptPayload{Modes: []string{string(AnswerModeFreeText), string(AnswerModeMultipleChoice)}})
	s.stage = StageTopicChosen
}

// ChooseAnswerMode picks the answer mode and kicks off story generation.
// Valid only once, directly after the topic choice. The loading placeholder
// stays visible until the generation call resolves.
func (s *Session) ChooseAnswerMode(ctx context.Context, mode AnswerMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.stage != StageTopicChosen {
		return
	}
	if mode != AnswerModeFreeText && mode != AnswerModeMultipleChoice {
		return
	}
	s.mode = mode
	s.log.Append(chatlog.KindPlain, chatlog.DirectionSent, confirmText(mode), nil)
	s.log.AppendLoading(loadingStoryText)
	s.stage = StageAnswerModeChosen

	requestID := uuid.NewString()
	s.pendingRequestID = requestID
	go s.generateStory(context.WithoutCancel(ctx), s.generation, requestID, s.topic, mode)
}

func (s *Session) generateStory(ctx context.Context, generation uint64, requestID, topic string, mode AnswerMode) {
	var channel chan chatlog.Message
	if s.broker != nil {
		channel = make(chan chatlog.Message, brokerBuffer)
		s.broker.Publish(s.id, channel)
		defer func() {
			close(channel)
			s.broker.Unpublish(s.id)
		}()
	}

	story, err := s.backend.GenerateStory(ctx, topic, string(mode))
	resolved := s.applyStoryResult(ctx, generation, requestID, story, err)
	for _, msg := range resolved {
		select {
		case channel <- msg:
		default:
		}
	}
}

func (s *Session) applyStoryResult(
	ctx context.Context,
	generation uint64,
	requestID string,
	story *stories.Story,
	err error,
) []chatlog.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || requestID != s.pendingRequestID {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "discarding stale story response",
			slog.String("request_id", requestID))
		return nil
	}
	s.pendingRequestID = ""

	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "story generation failed", errors.SlogError(err))
		// The session stalls here; only an explicit restart leads out.
		return []chatlog.Message{
			s.log.ResolveLoading(chatlog.KindError, chatlog.DirectionReceived, storyErrorText, nil),
		}
	}

	s.story = story
	s.player.Load(story.AudioURL)
	msg := s.log.ResolveLoading(chatlog.KindStory, chatlog.DirectionReceived, story.Story,
		chatlog.StoryPayload{
			RequestID: story.RequestID,
			Story:     story.Story,
			AudioURL:  s.player.Snapshot().URL,
		})
	s.stage = StageStoryReady
	return []chatlog.Message{msg}
}

// BeginQuestions normalizes the story's questions and asks the first one.
// Valid only once, after the story arrived.
func (s *Session) BeginQuestions(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.stage != StageStoryReady {
		return
	}
	s.questions = NormalizeQuestions(s.story.Questions)
	s.current = 0
	if len(s.questions) == 0 {
		// Nothing to ask; score the empty round right away.
		s.waiting = false
		s.stage = StageAllAnswered
		s.dispatchEvaluation(ctx)
		return
	}
	s.waiting = true
	s.stage = StageQuestionLoop
	s.appendQuestion(0)
}

func (s *Session) appendQuestion(index int) {
	question := s.questions[index]
	choices := make([]string, len(question.Choices))
	for i, choice := range question.Choices {
		choices[i] = choice.Text
	}
	s.log.Append(chatlog.KindQuestion, chatlog.DirectionReceived, question.Prompt,
		chatlog.QuestionPayload{
			Index:   index,
			Total:   len(s.questions),
			Choices: choices,
		})
}

// AnswerText submits a free-text answer for the current question. Empty input
// after trimming is ignored. Correctness is decided later by the remote
// grader.
func (s *Session) AnswerText(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.waiting || s.mode != AnswerModeFreeText {
		return
	}
	if s.current < 0 || s.current >= len(s.questions) {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.answered[s.current] = true
	s.textAnswers[s.current] = text
	s.log.Append(chatlog.KindPlain, chatlog.DirectionSent, text, nil)
	s.advance(ctx)
}

// AnswerChoice submits a choice index for the current multiple-choice
// question. Out-of-range indices and repeated answers are ignored.
func (s *Session) AnswerChoice(ctx context.Context, choice int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !s.waiting || s.mode != AnswerModeMultipleChoice {
		return
	}
	if s.current < 0 || s.current >= len(s.questions) {
		return
	}
	question := s.questions[s.current]
	if choice < 0 || choice >= len(question.Choices) {
		return
	}
	if s.answered[s.current] {
		return
	}
	s.answered[s.current] = true
	s.selected[s.current] = choice
	s.log.Append(chatlog.KindPlain, chatlog.DirectionSent, question.Choices[choice].Text, nil)
	s.advance(ctx)
}

// advance moves to the next question or, after the last answer, triggers
// evaluation. The caller holds the lock.
func (s *Session) advance(ctx context.Context) {
	s.current++
	if s.current < len(s.questions) {
		s.appendQuestion(s.current)
		return
	}
	s.waiting = false
	s.stage = StageAllAnswered
	s.dispatchEvaluation(ctx)
}

// Restart discards all session state and returns to the idle stage. Valid
// from any state. In-flight backend responses for the discarded state are
// dropped by the generation check.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// UpdatePlayer runs fn on the audio player under the session lock. The player
// reference must not escape the callback.
func (s *Session) UpdatePlayer(fn func(p *audio.Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	fn(s.player)
}

// SnapshotState returns a consistent view of the session.
func (s *Session) SnapshotState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.id,
		Stage:            s.stage,
		Topic:            s.topic,
		Mode:             s.mode,
		CurrentQuestion:  s.current,
		QuestionCount:    len(s.questions),
		WaitingForAnswer: s.waiting,
		Messages:         s.log.Messages(),
		Audio:            s.player.Snapshot(),
	}
}

// idleFor reports how long the session has been without user activity.
func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Package chatlog implements the append-only message log that backs a
// practice session. The log is the single source of truth for what the user
// sees. Entries are only ever appended during normal flow; the one exception
// is the transient loading placeholder which is removed once the response it
// stands for resolves. Removal is keyed by the reserved LoadingID, never by
// content matching.
package chatlog

import (
	"fmt"
	"time"
)

// Direction tells whether a message was sent by the user or received from the system.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Kind tags a message with its variant. The payload type of a message is
// determined by its kind, see [Payload].
type Kind string

const (
	KindPlain            Kind = "plain"
	KindTopicPrompt      Kind = "topic-prompt"
	KindAnswerTypePrompt Kind = "answer-type-prompt"
	KindStory            Kind = "story"
	KindQuestion         Kind = "question"
	KindEvaluation       Kind = "evaluation"
	KindRestartPrompt    Kind = "restart-prompt"
	KindError            Kind = "error"
)

// LoadingID is the reserved message ID for the transient loading placeholder.
const LoadingID = "loading"

// Payload is the closed union of kind-specific message data. Each variant
// carries only the data relevant for its kind so that consumers never have to
// shape-sniff an untyped field.
type Payload interface {
	payloadKind() Kind
}

// TopicPromptPayload lists the topics the user can pick from.
type TopicPromptPayload struct {
	Topics []string `json:"topics"`
}

func (TopicPromptPayload) payloadKind() Kind { return KindTopicPrompt }

// AnswerTypePromptPayload lists the selectable answer modes on the wire.
type AnswerTypePromptPayload struct {
	Modes []string `json:"modes"`
}

func (AnswerTypePromptPayload) payloadKind() Kind { return KindAnswerTypePrompt }

// StoryPayload carries the generated story and its audio source.
type StoryPayload struct {
	RequestID string `json:"requestId"`
	Story     string `json:"story"`
	AudioURL  string `json:"audioUrl"`
}

func (StoryPayload) payloadKind() Kind { return KindStory }

// QuestionPayload carries one comprehension question. Choices is empty in
// free-text mode.
type QuestionPayload struct {
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Choices []string `json:"choices,omitempty"`
}

func (QuestionPayload) payloadKind() Kind { return KindQuestion }

// EvaluationPayload carries scoring results. Score is only meaningful on the
// summary message where Summary is true.
type EvaluationPayload struct {
	Summary    bool   `json:"summary"`
	Score      int    `json:"score,omitempty"`
	Correct    int    `json:"correct,omitempty"`
	Total      int    `json:"total,omitempty"`
	Question   string `json:"question,omitempty"`
	Answer     string `json:"answer,omitempty"`
	IsCorrect  bool   `json:"isCorrect,omitempty"`
	Correction string `json:"correction,omitempty"`
}

func (EvaluationPayload) payloadKind() Kind { return KindEvaluation }

// Message is one chat entry.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

// Log is the ordered message sequence of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Log struct {
	messages []Message
	nextID   int
	now      func() time.Time
}

// New creates an empty log.
func New() *Log {
	return &Log{
		messages: nil,
		nextID:   1,
		now:      time.Now,
	}
}

func (l *Log) newMessage(kind Kind, direction Direction, text string, payload Payload) Message {
	id := fmt.Sprintf("m%d", l.nextID)
	l.nextID++
	return Message{
		ID:        id,
		Kind:      kind,
		Direction: direction,
		Text:      text,
		Timestamp: l.now(),
		Payload:   payload,
	}
}

// Append adds a message to the end of the log and returns it.
func (l *Log) Append(kind Kind, direction Direction, text string, payload Payload) Message {
	msg := l.newMessage(kind, direction, text, payload)
	l.messages = append(l.messages, msg)
	return msg
}

// AppendLoading adds the transient loading placeholder. Appending a second
// placeholder while one is visible is a no-op returning the existing one.
func (l *Log) AppendLoading(text string) Message {
	if i := l.loadingIndex(); i >= 0 {
		return l.messages[i]
	}
	msg := Message{
		ID:        LoadingID,
		Kind:      KindPlain,
		Direction: DirectionReceived,
		Text:      text,
		Timestamp: l.now(),
		Payload:   nil,
	}
	l.messages = append(l.messages, msg)
	return msg
}

// ResolveLoading removes the loading placeholder and appends the resolution
// message as one atomic log update. There is no observable intermediate state
// because the log is only ever read through snapshots taken under the session
// lock.
func (l *Log) ResolveLoading(kind Kind, direction Direction, text string, payload Payload) Message {
	l.RemoveLoading()
	return l.Append(kind, direction, text, payload)
}

// RemoveLoading drops the loading placeholder if present.
func (l *Log) RemoveLoading() {
	if i := l.loadingIndex(); i >= 0 {
		l.messages = append(l.messages[:i], l.messages[i+1:]...)
	}
}

// HasLoading reports whether the loading placeholder is currently visible.
func (l *Log) HasLoading() bool {
	return l.loadingIndex() >= 0
}

func (l *Log) loadingIndex() int {
	for i, msg := range l.messages {
		if msg.ID == LoadingID {
			return i
		}
	}
	return -1
}

// Messages returns a copy of the log entries in append order.
func (l *Log) Messages() []Message {
	msgs := make([]Message, len(l.messages))
	copy(msgs, l.messages)
	return msgs
}

// Len returns the number of visible entries.
func (l *Log) Len() int {
	return len(l.messages)
}

// Last returns the newest entry. ok is false for an empty log.
func (l *Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false //nolint:exhaustruct // zero value on miss
	}
	return l.messages[len(l.messages)-1], true
}

// Package quiz implements the practice-session state machine: topic choice,
// answer-mode choice, story delivery, the question loop, scoring and restart.
// All session state is in memory; a restart is a full reset.
package quiz

// Stage is the single source of truth for where a session is in its flow.
// The stages are linear with one loop over the questions.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageTopicChosen      Stage = "topic-chosen"
	StageAnswerModeChosen Stage = "answer-mode-chosen"
	StageStoryReady       Stage = "story-ready"
	StageQuestionLoop     Stage = "question-loop"
	StageAllAnswered      Stage = "all-answered"
	StageRestartOffered   Stage = "restart-offered"
)

// AnswerMode selects how the user answers the comprehension questions. The
// values match the wire format of the generate-story call.
type AnswerMode string

const (
	AnswerModeFreeText       AnswerMode = "text"
	AnswerModeMultipleChoice AnswerMode = "multiple"
)

// ParseAnswerMode maps a wire value to an AnswerMode.
func ParseAnswerMode(s string) (AnswerMode, bool) {
	switch AnswerMode(s) {
	case AnswerModeFreeText:
		return AnswerModeFreeText, true
	case AnswerModeMultipleChoice:
		return AnswerModeMultipleChoice, true
	}
	return "", false
}

var topics = []string{"Sport", "Reisen", "Essen", "Musik", "Tiere", "Technik"}

// Topics returns the fixed closed set of selectable story topics.
func Topics() []string {
	t := make([]string, len(topics))
	copy(t, topics)
	return t
}

// ValidTopic reports whether topic belongs to the fixed set.
func ValidTopic(topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Fixed user-facing strings. The product language is German.
const (
	topicPromptText       = "Hallo! Wähle ein Thema für deine Hörgeschichte:"
	answerTypePromptText  = "Möchtest du frei antworten oder Antwortmöglichkeiten auswählen?"
	freeTextConfirmText   = "Ich antworte mit eigenen Worten."
	multipleConfirmText   = "Ich wähle aus Antwortmöglichkeiten."
	loadingStoryText      = "Einen Moment, deine Geschichte wird erstellt…"
	loadingEvaluationText = "Einen Moment, deine Antworten werden ausgewertet…"
	storyErrorText        = "Beim Erstellen der Geschichte ist leider ein Fehler aufgetreten."
	evaluationErrorText   = "Bei der Auswertung deiner Antworten ist leider ein Fehler aufgetreten."
	restartPromptText     = "Möchtest du noch eine Runde üben? Starte einfach neu!"
	noAnswerText          = "keine Antwort"
)

func confirmText(mode AnswerMode) string {
	if mode == AnswerModeFreeText {
		return freeTextConfirmText
	}
	return multipleConfirmText
}

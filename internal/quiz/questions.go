package quiz

import (
	"encoding/json"
	"strings"
)

// Choice is one selectable answer of a multiple-choice question.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is one normalized comprehension question. Choices is empty in
// free-text mode.
type Question struct {
	Prompt  string   `json:"question"`
	Choices []Choice `json:"choices,omitempty"`
}

type questionLike struct {
	Question string   `json:"question"`
	Choices  []Choice `json:"choices"`
}

// NormalizeQuestions turns the raw question entries of a generated story into
// questions. Entries may be structured objects, JSON-encoded strings or plain
// strings; an entry that cannot be interpreted degrades to its literal text
// with no choices rather than failing.
func NormalizeQuestions(raw []json.RawMessage) []Question {
	questions := make([]Question, 0, len(raw))
	for _, entry := range raw {
		questions = append(questions, normalizeQuestion(entry))
	}
	return questions
}

func normalizeQuestion(raw json.RawMessage) Question {
	var structured questionLike
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Question != "" {
		return Question{Prompt: structured.Question, Choices: structured.Choices}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		// The entry is a string which may itself encode {question, choices}.
		if err = json.Unmarshal([]byte(text), &structured); err == nil && structured.Question != "" {
			return Question{Prompt: structured.Question, Choices: structured.Choices}
		}
		return Question{Prompt: strings.TrimSpace(text), Choices: nil}
	}

	// Malformed entry: degrade to the literal text.
	return Question{Prompt: strings.TrimSpace(string(raw)), Choices: nil}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/myrjola/hoerquiz/internal/ai"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/stories"
)

// generator produces stories and grades answers. The wire types are shared
// with the frontend's backend client.
type generator interface {
	GenerateStory(ctx context.Context, topic, answerType string) (*stories.Story, error)
	EvaluateAnswers(ctx context.Context, story string, questions []stories.QuestionAnswer) (*stories.Evaluation, error)
}

// audioPath is where the speech-synthesis pipeline publishes the audio for a
// request.
func audioPath(requestID string) string {
	return "/audio/" + requestID + ".mp3"
}

type llmGenerator struct {
	client ai.Client
	model  string
	logger *slog.Logger
}

func newLLMGenerator(client ai.Client, model string, logger *slog.Logger) *llmGenerator {
	return &llmGenerator{
		client: client,
		model:  model,
		logger: logger.With("source", "llmGenerator"),
	}
}

const storySystemPrompt = `Du bist eine Deutschlehrerin und erstellst kurze ` +
	`Hörverstehensgeschichten für Lernende auf Niveau B1. Antworte ausschließlich ` +
	`mit einem JSON-Objekt.`

const evaluationSystemPrompt = `Du bist eine Deutschlehrerin und bewertest ` +
	`Antworten auf Verständnisfragen zu einer Geschichte. Sei wohlwollend bei ` +
	`kleinen Rechtschreibfehlern. Antworte ausschließlich mit einem JSON-Objekt.`

func storyUserPrompt(topic, answerType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schreibe eine Geschichte von etwa 150 Wörtern zum Thema %q ", topic)
	b.WriteString("und stelle drei Verständnisfragen dazu.\n")
	if answerType == "multiple" {
		b.WriteString(`Antwortformat: {"story": "...", "questions": [{"question": "...", ` +
			`"choices": [{"text": "...", "isCorrect": true}, {"text": "...", "isCorrect": false}]}]}` + "\n")
		b.WriteString("Jede Frage hat drei Antwortmöglichkeiten, genau eine davon ist richtig.\n")
	} else {
		b.WriteString(`Antwortformat: {"story": "...", "questions": ["Frage 1", "Frage 2", "Frage 3"]}` + "\n")
	}
	return b.String()
}

func (g *llmGenerator) GenerateStory(ctx context.Context, topic, answerType string) (*stories.Story, error) {
	content, err := g.client.CompleteJSON(ctx, g.model, storySystemPrompt, storyUserPrompt(topic, answerType))
	if err != nil {
		return nil, errors.Wrap(err, "complete story", slog.String("topic", topic))
	}
	var parsed struct {
		Story     string            `json:"story"`
		Questions []json.RawMessage `json:"questions"`
	}
	if err = json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, errors.Wrap(err, "parse story completion")
	}
	if parsed.Story == "" {
		return nil, errors.New("completion has no story")
	}
	requestID := uuid.NewString()
	return &stories.Story{
		RequestID: requestID,
		Story:     parsed.Story,
		Questions: parsed.Questions,
		AudioURL:  audioPath(requestID),
	}, nil
}

func (g *llmGenerator) EvaluateAnswers(
	ctx context.Context,
	story string,
	questions []stories.QuestionAnswer,
) (*stories.Evaluation, error) {
	answersJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal answers")
	}
	user := fmt.Sprintf(`Geschichte:
%s

Fragen und Antworten:
%s

Antwortformat: {"overallScore": 0, "feedback": "...", "evaluations": `+
		`[{"question": "...", "answer": "...", "isCorrect": true, "correction": "...", "explanation": "..."}]}
overallScore ist eine Zahl zwischen 0 und 100.`, story, answersJSON)

	content, err := g.client.CompleteJSON(ctx, g.model, evaluationSystemPrompt, user)
	if err != nil {
		return nil, errors.Wrap(err, "complete evaluation")
	}
	var evaluation stories.Evaluation
	if err = json.Unmarshal([]byte(content), &evaluation); err != nil {
		return nil, errors.Wrap(err, "parse evaluation completion")
	}
	if evaluation.Evaluations == nil {
		return nil, errors.New("completion has no evaluations")
	}
	return &evaluation, nil
}

// cannedGenerator serves a fixed story per topic so the frontend can be
// developed without an API key.
type cannedGenerator struct{}

func (cannedGenerator) GenerateStory(_ context.Context, topic, answerType string) (*stories.Story, error) {
	story := fmt.Sprintf(
		"Lena interessiert sich sehr für das Thema %s. Am Wochenende besuchte sie "+
			"mit ihrer Freundin Marie eine Veranstaltung in der Stadt. Sie blieben "+
			"zwei Stunden und fuhren danach mit dem Bus nach Hause.", topic)

	var questions []json.RawMessage
	if answerType == "multiple" {
		questions = []json.RawMessage{
			json.RawMessage(`{"question": "Mit wem war Lena unterwegs?", "choices": [` +
				`{"text": "Mit Marie", "isCorrect": true}, ` +
				`{"text": "Mit Paul", "isCorrect": false}, ` +
				`{"text": "Allein", "isCorrect": false}]}`),
			json.RawMessage(`{"question": "Wie fuhren sie nach Hause?", "choices": [` +
				`{"text": "Mit dem Fahrrad", "isCorrect": false}, ` +
				`{"text": "Mit dem Bus", "isCorrect": true}, ` +
				`{"text": "Mit dem Auto", "isCorrect": false}]}`),
		}
	} else {
		questions = []json.RawMessage{
			json.RawMessage(`"Mit wem war Lena unterwegs?"`),
			json.RawMessage(`"Wie lange blieben sie?"`),
		}
	}

	requestID := uuid.NewString()
	return &stories.Story{
		RequestID: requestID,
		Story:     story,
		Questions: questions,
		AudioURL:  audioPath(requestID),
	}, nil
}

func (cannedGenerator) EvaluateAnswers(
	_ context.Context,
	_ string,
	questions []stories.QuestionAnswer,
) (*stories.Evaluation, error) {
	evaluations := make([]stories.AnswerEvaluation, 0, len(questions))
	correct := 0
	for _, qa := range questions {
		// Deterministic grading stand-in: any substantial answer counts.
		isCorrect := len(strings.TrimSpace(qa.Answer)) >= 3
		if isCorrect {
			correct++
		}
		evaluations = append(evaluations, stories.AnswerEvaluation{
			Question:    qa.Question,
			Answer:      qa.Answer,
			IsCorrect:   isCorrect,
			Correction:  "",
			Explanation: "",
		})
	}
	score := 0.0
	if len(questions) > 0 {
		score = 100 * float64(correct) / float64(len(questions))
	}
	return &stories.Evaluation{
		OverallScore: score,
		Feedback:     "Gut gemacht!",
		Evaluations:  evaluations,
	}, nil
}

package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/myrjola/hoerquiz/internal/chatlog"
	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/myrjola/hoerquiz/internal/stories"
)

// dispatchEvaluation scores the finished round. Multiple choice is computed
// locally without any network call; free text goes to the remote grader. The
// caller holds the lock.
func (s *Session) dispatchEvaluation(ctx context.Context) {
	if s.mode == AnswerModeMultipleChoice {
		s.evaluateLocally()
		return
	}
	s.evaluateRemotely(ctx)
}

// evaluateLocally computes the multiple-choice score: correctness per
// question is the recorded choice's isCorrect flag, unanswered questions
// count as incorrect.
func (s *Session) evaluateLocally() {
	total := len(s.questions)
	correct := 0
	for i, question := range s.questions {
		if !s.answered[i] {
			continue
		}
		choice := s.selected[i]
		if choice >= 0 && choice < len(question.Choices) && question.Choices[choice].IsCorrect {
			correct++
		}
	}

	score := 0
	if total > 0 {
		score = int(math.Round(100 * float64(correct) / float64(total)))
	}

	s.log.Append(chatlog.KindEvaluation, chatlog.DirectionReceived,
		fmt.Sprintf("Dein Ergebnis: %d%% (%d von %d)", score, correct, total),
		chatlog.EvaluationPayload{ //nolint:exhaustruct // summary variant
			Summary: true,
			Score:   score,
			Correct: correct,
			Total:   total,
		})

	for i, question := range s.questions {
		chosenText, correctText, ok := s.incorrectDetail(i, question)
		if !ok {
			continue
		}
		s.log.Append(chatlog.KindEvaluation, chatlog.DirectionReceived,
			fmt.Sprintf("Frage %d: Deine Antwort war „%s“. Richtig wäre „%s“.", i+1, chosenText, correctText),
			chatlog.EvaluationPayload{ //nolint:exhaustruct // detail variant
				Question:   question.Prompt,
				Answer:     chosenText,
				IsCorrect:  false,
				Correction: correctText,
			})
	}

	s.offerRestart()
}

// incorrectDetail returns the user's choice text and the correct choice text
// for question i. ok is false when the answer was correct.
func (s *Session) incorrectDetail(i int, question Question) (chosenText, correctText string, ok bool) {
	correctText = ""
	for _, choice := range question.Choices {
		if choice.IsCorrect {
			correctText = choice.Text
			break
		}
	}

	if !s.answered[i] {
		return noAnswerText, correctText, true
	}
	choice := s.selected[i]
	if choice < 0 || choice >= len(question.Choices) {
		return noAnswerText, correctText, true
	}
	if question.Choices[choice].IsCorrect {
		return "", "", false
	}
	return question.Choices[choice].Text, correctText, true
}

// evaluateRemotely sends the story and the collected answers to the grader.
// The caller holds the lock.
func (s *Session) evaluateRemotely(ctx context.Context) {
	s.log.AppendLoading(loadingEvaluationText)

	questions := make([]stories.QuestionAnswer, len(s.questions))
	for i, question := range s.questions {
		questions[i] = stories.QuestionAnswer{
			Question: question.Prompt,
			Answer:   s.textAnswers[i],
		}
	}
	storyText := ""
	if s.story != nil {
		storyText = s.story.Story
	}

	requestID := uuid.NewString()
	s.pendingRequestID = requestID
	go s.gradeAnswers(context.WithoutCancel(ctx), s.generation, requestID, storyText, questions)
}

func (s *Session) gradeAnswers(
	ctx context.Context,
	generation uint64,
	requestID string,
	storyText string,
	questions []stories.QuestionAnswer,
) {
	var channel chan chatlog.Message
	if s.broker != nil {
		channel = make(chan chatlog.Message, brokerBuffer)
		s.broker.Publish(s.id, channel)
		defer func() {
			close(channel)
			s.broker.Unpublish(s.id)
		}()
	}

	evaluation, err := s.backend.EvaluateAnswers(ctx, storyText, questions)
	resolved := s.applyEvaluationResult(ctx, generation, requestID, evaluation, err)
	for _, msg := range resolved {
		select {
		case channel <- msg:
		default:
		}
	}
}

func (s *Session) applyEvaluationResult(
	ctx context.Context,
	generation uint64,
	requestID string,
	evaluation *stories.Evaluation,
	err error,
) []chatlog.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation || requestID != s.pendingRequestID {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "discarding stale evaluation response",
			slog.String("request_id", requestID))
		return nil
	}
	s.pendingRequestID = ""

	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "answer evaluation failed", errors.SlogError(err))
		// No partial results and no restart prompt; the restart action itself
		// remains available from any state.
		return []chatlog.Message{
			s.log.ResolveLoading(chatlog.KindError, chatlog.DirectionReceived, evaluationErrorText, nil),
		}
	}

	s.log.RemoveLoading()
	resolved := make([]chatlog.Message, 0, len(evaluation.Evaluations)+2) //nolint:mnd // summary and restart prompt
	for i, verdict := range evaluation.Evaluations {
		resolved = append(resolved, s.log.Append(chatlog.KindEvaluation, chatlog.DirectionReceived,
			feedbackText(i, verdict),
			chatlog.EvaluationPayload{ //nolint:exhaustruct // detail variant
				Question:   verdict.Question,
				Answer:     verdict.Answer,
				IsCorrect:  verdict.IsCorrect,
				Correction: verdict.Correction,
			}))
	}

	score := int(math.Round(evaluation.OverallScore))
	summaryText := fmt.Sprintf("Dein Ergebnis: %d%%.", score)
	if evaluation.Feedback != "" {
		summaryText = fmt.Sprintf("%s %s", summaryText, evaluation.Feedback)
	}
	resolved = append(resolved, s.log.Append(chatlog.KindEvaluation, chatlog.DirectionReceived, summaryText,
		chatlog.EvaluationPayload{ //nolint:exhaustruct // summary variant
			Summary: true,
			Score:   score,
			Total:   len(evaluation.Evaluations),
		}))

	resolved = append(resolved, s.offerRestart())
	return resolved
}

func feedbackText(i int, verdict stories.AnswerEvaluation) string {
	if verdict.IsCorrect {
		return fmt.Sprintf("Frage %d: Richtig beantwortet.", i+1)
	}
	text := fmt.Sprintf("Frage %d: Leider nicht richtig.", i+1)
	if verdict.Correction != "" {
		text = fmt.Sprintf("%s Besser wäre: „%s“.", text, verdict.Correction)
	}
	if verdict.Explanation != "" {
		text = fmt.Sprintf("%s %s", text, verdict.Explanation)
	}
	return text
}

// offerRestart appends the restart prompt, the only way forward after an
// evaluation. The caller holds the lock.
func (s *Session) offerRestart() chatlog.Message {
	s.stage = StageRestartOffered
	return s.log.Append(chatlog.KindRestartPrompt, chatlog.DirectionReceived, restartPromptText, nil)
}

// Package answer turns retrieved chunks into a context-grounded answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/search"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

// User-facing messages for the outcomes that do not come from the synthesizer.
const (
	NoInformationMessage = "I don't have information to answer that question based on our documents."
	NoKnowledgeMessage   = "I don't have any documents to search yet. Please ask an admin to add some company documents!"
	ApologyMessage       = "Sorry, I'm having some technical difficulties. Please try again in a moment!"
)

// ErrSynthesis wraps a failed completion call.
var ErrSynthesis = errors.New("answer synthesis failed")

// Synthesizer completes a prompt with a language model.
type Synthesizer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever returns the top-k chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.Match, error)
}

// Answerer retrieves context for a question and asks the synthesizer to answer from it.
// It never returns an error: every failure becomes a user-facing message.
type Answerer struct {
	retriever   Retriever
	synthesizer Synthesizer
	k           int
	logger      *zap.Logger
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithLogger sets the logger for failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Answerer) { a.logger = l }
}

// WithK sets how many chunks are retrieved per question.
func WithK(k int) Option {
	return func(a *Answerer) {
		if k > 0 {
			a.k = k
		}
	}
}

// NewAnswerer creates an Answerer.
func NewAnswerer(r Retriever, s Synthesizer, opts ...Option) *Answerer {
	a := &Answerer{retriever: r, synthesizer: s, k: models.DefaultK}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = utils.OrNop(a.logger)
	return a
}

// Answer returns the answer text for question.
func (a *Answerer) Answer(ctx context.Context, question string) string {
	return a.AnswerDetailed(ctx, question, 0).Answer
}

// AnswerDetailed answers question using k chunks (the configured default when k <= 0)
// and reports the outcome and sources alongside the text.
func (a *Answerer) AnswerDetailed(ctx context.Context, question string, k int) models.Answer {
	start := time.Now()
	if k <= 0 {
		k = a.k
	}
	res := models.Answer{Question: question, Sources: []models.Match{}}
	finish := func(outcome models.Outcome, text string) models.Answer {
		res.Outcome = outcome
		res.Answer = text
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	matches, err := a.retriever.Retrieve(ctx, question, k)
	if err != nil {
		if errors.Is(err, search.ErrNotLoaded) {
			a.logger.Warn("question asked before knowledge base was loaded", zap.String("question", question))
			return finish(models.OutcomeNoKnowledge, NoKnowledgeMessage)
		}
		a.logger.Error("retrieval failed", zap.String("question", question), zap.Error(err))
		return finish(models.OutcomeFailed, ApologyMessage)
	}
	if len(matches) == 0 {
		return finish(models.OutcomeNoInformation, NoInformationMessage)
	}
	res.Sources = matches

	prompt := BuildPrompt(BuildContext(matches), question)
	text, err := a.synthesizer.Complete(ctx, prompt)
	if err != nil {
		a.logger.Error("synthesis failed",
			zap.String("question", question),
			zap.Int("context_chunks", len(matches)),
			zap.Error(fmt.Errorf("%w: %w", ErrSynthesis, err)))
		return finish(models.OutcomeFailed, ApologyMessage)
	}
	a.logger.Debug("question answered",
		zap.Int("context_chunks", len(matches)),
		zap.Duration("took", time.Since(start)))
	return finish(models.OutcomeAnswered, text)
}

// BuildContext labels each match "Document N:" (1-based) and joins them with a blank line.
func BuildContext(matches []models.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("Document %d:\n%s", i+1, m.Text)
	}
	return strings.Join(parts, "\n\n")
}

const promptTemplate = `Use only the following context from our company documents to answer the question.
If the context does not contain the answer, say explicitly that you don't know based on the available documents. Do not make up an answer.

Context:
%s

Question: %s

Answer:`

// BuildPrompt fills the instruction template with context and question.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf(promptTemplate, context, question)
}

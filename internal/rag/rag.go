package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"agentic-rag/internal/llmservice"
	"agentic-rag/internal/models"
)

type Stage string

const (
	StageStart      Stage = "start"
	StageRetrieving Stage = "retrieving"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"
)

// ContextRetriever returns the chunks relevant to a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, question string) ([]models.Chunk, error)
	Close() error
}

// RetrieverOpener binds a retriever to a backend. It runs once per question.
type RetrieverOpener func(ctx context.Context) (ContextRetriever, error)

// State is the pipeline's record of one question.
type State struct {
	Stage    Stage
	Question string
	Context  []string
	Raw      string
	Answer   models.Answer
}

// AnswerTemperature is the sampling temperature of every answer call.
const AnswerTemperature = 0.0

type Pipeline struct {
	open  RetrieverOpener
	model llmservice.ChatModel
}

func NewPipeline(open RetrieverOpener, model llmservice.ChatModel) *Pipeline {
	return &Pipeline{open: open, model: model}
}

// Ask answers a question and returns only the final answer.
func (p *Pipeline) Ask(ctx context.Context, question string) (models.Answer, error) {
	st, err := p.Run(ctx, question)
	if err != nil {
		return models.Answer{}, err
	}
	return st.Answer, nil
}

// Run moves one question through retrieving and generating. Retrieval
// problems leave the context empty; model errors are returned.
func (p *Pipeline) Run(ctx context.Context, question string) (*State, error) {
	st := &State{Stage: StageStart, Question: question}

	st.Stage = StageRetrieving
	st.Context = p.retrieve(ctx, question)

	st.Stage = StageGenerating
	raw, err := llmservice.GenerateContent(ctx, p.model, BuildSystemPrompt(st.Context), question, AnswerTemperature)
	if err != nil {
		return st, fmt.Errorf("failed to generate answer: %w", err)
	}
	st.Raw = raw
	st.Answer = ParseAnswer(raw)
	if st.Answer.Status != models.StatusOK {
		log.Warn().Str("status", string(st.Answer.Status)).Msg("Model output did not match the answer schema")
	}

	st.Stage = StageDone
	return st, nil
}

func (p *Pipeline) retrieve(ctx context.Context, question string) []string {
	r, err := p.open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Retriever unavailable, answering without context")
		return nil
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close retriever")
		}
	}()

	chunks, err := r.Retrieve(ctx, question)
	if err != nil {
		log.Error().Err(err).Msg("Retrieval failed, answering without context")
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

// BuildSystemPrompt interpolates the context chunks, separated by blank
// lines, into the grounding instruction.
func BuildSystemPrompt(chunks []string) string {
	return fmt.Sprintf(models.SystemPromptTemplate, models.RefusalAnswer, strings.Join(chunks, models.ContextSeparator))
}

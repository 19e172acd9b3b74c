package strategy

import (
	"context"

	"perpilot/internal/llm"
)

// GenerateProgram renders the model's prompt template with the current market/account snapshot
// and asks the LLM Dispatcher for a decision program (spec §4.6's LLM-backed path). It is called
// when a Strategy's program text is (re)generated, not on every orchestrator cycle — the
// compiled program is what the hot path invokes. Returns both the extracted program text and
// the rendered user prompt that was sent, so the caller can persist an audit record of it.
func GenerateProgram(
	ctx context.Context,
	dispatcher llm.Dispatcher,
	promptTemplate string,
	account AccountInfo,
	candidates []CandidateRecord,
	positions []PositionRecord,
	cfg llm.GenerateConfig,
) (programText string, renderedPrompt string, err error) {
	renderedPrompt = renderPrompt(promptTemplate, account, candidates, positions)
	req := &llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: renderedPrompt},
		},
		Config: cfg,
	}
	programText, err = dispatcher.Dispatch(ctx, req)
	return programText, renderedPrompt, err
}

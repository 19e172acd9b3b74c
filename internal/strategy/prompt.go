package strategy

import (
	"encoding/json"
	"strings"
)

// renderPrompt substitutes the model's configured prompt template placeholders with a JSON
// snapshot of the market/account context, mirroring the teacher's strings.Replace-based
// templating (decision/engine.go's apiURL symbol substitution) rather than a general templating
// engine.
func renderPrompt(template string, account AccountInfo, candidates []CandidateRecord, positions []PositionRecord) string {
	accountJSON, _ := json.Marshal(account)
	candidatesJSON, _ := json.Marshal(candidates)
	positionsJSON, _ := json.Marshal(positions)

	out := template
	out = strings.Replace(out, "{account}", string(accountJSON), -1)
	out = strings.Replace(out, "{candidates}", string(candidatesJSON), -1)
	out = strings.Replace(out, "{positions}", string(positionsJSON), -1)
	return out
}

const defaultSystemPrompt = "You are a perpetual futures trading strategist. Respond with a program in the platform's restricted decision DSL only."

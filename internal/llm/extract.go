package llm

import (
	"encoding/json"
	"strings"
)

// extractCode normalizes a raw completion into plain text: it unwraps a `{"code"|
// "strategy_code": "..."}` object or a bare JSON string wrapper (some providers return
// `"...text..."` verbatim), peels markdown code fences, and de-escapes the literal backslash
// sequences a model sometimes emits instead of real control characters, per spec §4.4's
// post-processing rule.
func extractCode(raw string) string {
	s := strings.TrimSpace(raw)

	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		var wrapper struct {
			Code         *string `json:"code"`
			StrategyCode *string `json:"strategy_code"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err == nil {
			switch {
			case wrapper.Code != nil:
				s = *wrapper.Code
			case wrapper.StrategyCode != nil:
				s = *wrapper.StrategyCode
			}
		}
	} else if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unwrapped string
		if err := json.Unmarshal([]byte(s), &unwrapped); err == nil {
			s = unwrapped
		}
	}

	s = stripFence(s)
	s = deescape(s)
	return strings.TrimSpace(s)
}

func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	// Drop the opening fence (optionally tagged, e.g. "```json") and a trailing closing fence.
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

var deescapeReplacer = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\"`, `"`,
	`\'`, `'`,
	`\\`, `\`,
)

func deescape(s string) string {
	return deescapeReplacer.Replace(s)
}

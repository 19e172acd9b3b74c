package llm

import (
	"encoding/json"

	"perpilot/internal/apperr"
)

func parseJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.MalformedUpstream, "decode provider response", err)
	}
	return nil
}

func newUpstreamError(message string) error {
	return apperr.New(apperr.UpstreamPermanent, message)
}

func newMalformedError(message string) error {
	return apperr.New(apperr.MalformedUpstream, message)
}

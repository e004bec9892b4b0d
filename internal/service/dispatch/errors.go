package dispatch

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownTool is returned for tool names the dispatcher does not serve.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrAgentDisabled is returned by agents.run when the agent is missing
	// from the catalog or disabled for the org. No run is recorded.
	ErrAgentDisabled = errors.New("agent disabled")

	// ErrRateLimited is returned when an org exceeds its run rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ValidationError reports malformed tool parameters.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.Details, "; ") + ")"
}

package flow

// FlowState is the position of the controller in a login attempt.
type FlowState int32

const (
	StateIdle FlowState = iota
	StateRequesting
	StateAwaitingProviderRedirect
	StateExchanging
	StateVerifying
	StateAuthenticated
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateAwaitingProviderRedirect:
		return "awaiting_provider_redirect"
	case StateExchanging:
		return "exchanging"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

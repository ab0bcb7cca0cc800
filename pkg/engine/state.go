package engine

// TurnState is the state of the active conversation's turn.
type TurnState int

const (
	// Idle has no turn in progress.
	Idle TurnState = iota

	// AwaitingFirstToken has a request open and no content yet.
	AwaitingFirstToken

	// Streaming is receiving content.
	Streaming

	// Finalizing has a finished reply waiting for its flush.
	Finalizing

	// Cancelling has an aborted reply waiting for the stream to close and
	// the flush to land.
	Cancelling

	// Errored has a failure surfaced to the user: a backend failure still
	// being flushed, or a flush that did not land.
	Errored
)

func (s TurnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFirstToken:
		return "awaiting first token"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Cancelling:
		return "cancelling"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// TurnActive reports whether a stream is or may still be open.
func (s TurnState) TurnActive() bool {
	switch s {
	case AwaitingFirstToken, Streaming, Cancelling:
		return true
	default:
		return false
	}
}

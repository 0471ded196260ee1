// File: internal/services/chat/types.go
package chat

// Logger defines the logging interface used across chat services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// FailedDelete records one message whose store update failed during a batch
// deletion. Failures never abort the rest of the batch.
type FailedDelete struct {
	CompositeID string `json:"composite_id"`
	Reason      string `json:"reason"`
}

// BatchResult aggregates the per-message outcomes of one batch operation.
type BatchResult struct {
	Requested int            `json:"requested"`
	Succeeded int            `json:"succeeded"`
	Failed    []FailedDelete `json:"failed,omitempty"`
}

// DeleteOutcome reports a delete-for-everyone request: the tombstoned subset
// (messages the caller sent) and the hidden-for-caller fallback subset.
type DeleteOutcome struct {
	Everyone BatchResult `json:"everyone"`
	ForMe    BatchResult `json:"for_me"`
	// FellBackEntirely is set when the selection contained none of the
	// caller's own messages, so every message was only hidden for the
	// caller. Whether to confirm that with the user first is UI policy.
	FellBackEntirely bool `json:"fell_back_entirely"`
}

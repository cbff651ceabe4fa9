package enums

import "fmt"

// ActionKind names a follow-on action queued in the outbox.
type ActionKind string

const (
	ActionCreateLabel        ActionKind = "create_label"
	ActionEmitFiscalDocument ActionKind = "emit_fiscal_document"
	ActionForwardTracking    ActionKind = "forward_tracking"
	ActionPushOrder          ActionKind = "push_order"
)

var validActionKinds = []ActionKind{
	ActionCreateLabel,
	ActionEmitFiscalDocument,
	ActionForwardTracking,
	ActionPushOrder,
}

// ActionKinds lists every kind the dispatcher understands.
func ActionKinds() []ActionKind {
	return append([]ActionKind(nil), validActionKinds...)
}

func (k ActionKind) String() string {
	return string(k)
}

func (k ActionKind) IsValid() bool {
	for _, candidate := range validActionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseActionKind(value string) (ActionKind, error) {
	for _, candidate := range validActionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action kind %q", value)
}

// OutboxDLQErrorReason explains why an action stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

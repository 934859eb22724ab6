package enums

import "fmt"

// OutboxDLQErrorReason records why the publisher dead-lettered an event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means Pub/Sub kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the topic is unconfigured or rejected the message.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonInvalidPayload means the stored row could not be decoded into its event type.
	OutboxDLQReasonInvalidPayload OutboxDLQErrorReason = "invalid_payload"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonInvalidPayload:
		return true
	}
	return false
}

// Requeueable reports whether replaying the event can succeed without a code change.
func (r OutboxDLQErrorReason) Requeueable() bool {
	return r != OutboxDLQReasonInvalidPayload
}

// ParseOutboxDLQErrorReason converts raw input into OutboxDLQErrorReason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid dlq error reason %q", value)
	}
	return reason, nil
}

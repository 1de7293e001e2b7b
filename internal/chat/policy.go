// Package chat implements conversation rules on top of the store: who may
// send, find-or-create of pair conversations, and read-state transitions.
package chat

import "github.com/ashureev/jobchat/internal/domain"

const (
	// ReasonColdStart is returned when a non-employer tries to open a conversation.
	ReasonColdStart = "Only employers can start new conversations. Jobseekers can only reply to existing conversations."
	// ReasonRepliesDisabled is returned when a jobseeker replies while the flag is off.
	ReasonRepliesDisabled = "The employer has not enabled replies for this conversation."
)

// Decision is the outcome of a send permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// CanSend decides whether sender may send into conv, where conv is the
// existing conversation with the receiver or nil if there is none.
// It must be evaluated on every send; jobseeker_can_reply may change between sends.
func CanSend(sender *domain.User, conv *domain.Conversation) Decision {
	if conv == nil {
		if sender.IsEmployer() {
			return Decision{Allowed: true}
		}
		return Decision{Reason: ReasonColdStart}
	}
	if sender.IsJobseeker() && !conv.JobseekerCanReply {
		return Decision{Reason: ReasonRepliesDisabled}
	}
	return Decision{Allowed: true}
}

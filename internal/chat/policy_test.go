package chat

import (
	"testing"

	"github.com/ashureev/jobchat/internal/domain"
)

func TestCanSend(t *testing.T) {
	employer := &domain.User{ID: 1, Role: domain.RoleEmployer}
	jobseeker := &domain.User{ID: 2, Role: domain.RoleJobseeker}
	admin := &domain.User{ID: 3, Role: domain.RoleAdmin}

	open := &domain.Conversation{UserLow: 1, UserHigh: 2, JobseekerCanReply: true}
	closed := &domain.Conversation{UserLow: 1, UserHigh: 2, JobseekerCanReply: false}

	tests := []struct {
		name   string
		sender *domain.User
		conv   *domain.Conversation
		want   bool
		reason string
	}{
		{"employer cold start", employer, nil, true, ""},
		{"jobseeker cold start", jobseeker, nil, false, ReasonColdStart},
		{"admin cold start", admin, nil, false, ReasonColdStart},
		{"jobseeker reply allowed", jobseeker, open, true, ""},
		{"jobseeker reply disabled", jobseeker, closed, false, ReasonRepliesDisabled},
		{"employer reply regardless of flag", employer, closed, true, ""},
		{"admin reply regardless of flag", admin, closed, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanSend(tt.sender, tt.conv)
			if got.Allowed != tt.want {
				t.Errorf("Expected allowed=%v, got %v", tt.want, got.Allowed)
			}
			if got.Reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, got.Reason)
			}
		})
	}
}

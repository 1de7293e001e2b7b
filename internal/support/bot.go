// Package support implements the anonymous help-desk bot.
package support

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Topic is the keyword theme an inbound question matched.
type Topic int

const (
	TopicDefault Topic = iota
	TopicLogin
	TopicJob
	TopicRegister
)

func (t Topic) String() string {
	switch t {
	case TopicLogin:
		return "login"
	case TopicJob:
		return "job"
	case TopicRegister:
		return "register"
	default:
		return "default"
	}
}

// Keywords in match priority order.
var keywords = []struct {
	word  string
	topic Topic
}{
	{"login", TopicLogin},
	{"job", TopicJob},
	{"register", TopicRegister},
}

var replies = map[Topic][]string{
	TopicLogin: {
		"You can log in as a jobseeker by clicking Login → Jobseeker and entering your registered email and password.",
		"To access your account, go to the Login page and choose the Jobseeker option.",
		"Simply click on Login, select your role, and enter your credentials to continue.",
		"Use your registered email and password in the Login section to access your dashboard.",
	},
	TopicJob: {
		"You can browse available jobs from the Jobs section on your dashboard.",
		"Head over to the Jobs tab to explore current openings.",
		"All listed opportunities are available under the Jobs section.",
		"Visit the dashboard and click on Jobs to see matching positions.",
	},
	TopicRegister: {
		"Click on Register and fill in your details to create an account.",
		"To get started, select Register and complete the signup form.",
		"Choose Register, provide your information, and submit the form.",
		"You can create a new account by clicking the Register button.",
	},
	TopicDefault: {
		"Could you please provide more details so I can assist you better?",
		"I'm here to help. Can you clarify your question?",
		"Let me know a bit more information so I can guide you properly.",
		"Can you explain your concern in more detail?",
	},
}

// Classify returns the first topic, in priority order login > job > register,
// whose keyword appears anywhere in text (case-insensitive).
func Classify(text string) Topic {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw.word) {
			return kw.topic
		}
	}
	return TopicDefault
}

// Replies returns the canned replies for topic.
func Replies(topic Topic) []string {
	return replies[topic]
}

// ReplyFor picks one of the canned replies for text's topic using r.
func ReplyFor(text string, r *rand.Rand) string {
	options := replies[Classify(text)]
	return options[r.IntN(len(options))]
}

// Responder produces bot replies. It is safe for concurrent use.
type Responder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder creates a responder seeded from the clock.
func NewResponder() *Responder {
	now := uint64(time.Now().UnixNano())
	return NewSeededResponder(now, now>>32)
}

// NewSeededResponder creates a responder with a fixed seed, for reproducible replies.
func NewSeededResponder(seed1, seed2 uint64) *Responder {
	return &Responder{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Reply answers text.
func (r *Responder) Reply(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReplyFor(text, r.rng)
}

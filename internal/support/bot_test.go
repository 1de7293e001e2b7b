package support

import (
	"math/rand/v2"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		text string
		want Topic
	}{
		{"Where are the login instructions?", TopicLogin},
		{"LOGIN please", TopicLogin},
		{"I want to register then login to apply for a job", TopicLogin},
		{"how do I register for a job alert", TopicJob},
		{"Any jobs in Berlin?", TopicJob},
		{"How to Register?", TopicRegister},
		{"hello", TopicDefault},
		{"", TopicDefault},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, Classify(tt.text), tt.want)
		})
	}
}

func TestReplyForPicksFromTopic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		assert.Check(t, is.Contains(Replies(TopicLogin), ReplyFor("Where are the login instructions?", r)))
		assert.Check(t, is.Contains(Replies(TopicDefault), ReplyFor("hi there", r)))
	}
}

func TestSeededResponderIsReproducible(t *testing.T) {
	a := NewSeededResponder(7, 11)
	b := NewSeededResponder(7, 11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Reply("job"), b.Reply("job"))
	}
}

func TestResponderConcurrentUse(t *testing.T) {
	r := NewResponder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Reply("register")
			}
		}()
	}
	wg.Wait()
}

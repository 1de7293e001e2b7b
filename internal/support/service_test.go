package support

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/ashureev/jobchat/internal/store"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newTestRepo(t *testing.T) *store.SQLiteStore {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "support.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestConverse(t *testing.T) {
	svc := NewService(newTestRepo(t), NewSeededResponder(1, 1), nil)

	ex, err := svc.Converse(context.Background(), "", "Where are the login instructions?")
	assert.NilError(t, err)
	assert.Equal(t, ex.User.Sender, domain.SupportSenderUser)
	assert.Equal(t, ex.Bot.Sender, domain.SupportSenderBot)
	assert.Check(t, ex.User.ID > 0)
	assert.Check(t, ex.Bot.ID > ex.User.ID)
	assert.Check(t, ex.User.SessionID != "")
	assert.Equal(t, ex.User.SessionID, ex.Bot.SessionID)
	assert.Check(t, is.Contains(Replies(TopicLogin), ex.Bot.Message))
}

func TestConverseRequiresMessage(t *testing.T) {
	svc := NewService(newTestRepo(t), nil, nil)

	_, err := svc.Converse(context.Background(), "s1", "   ")
	assert.Check(t, shared.IsKind(err, shared.KindValidation), "got %v", err)
	assert.Check(t, is.Contains(shared.FieldsOf(err), "message"))
}

func TestPruneTranscripts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	old := &domain.SupportMessage{SessionID: "s", Sender: domain.SupportSenderUser, Message: "old", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &domain.SupportMessage{SessionID: "s", Sender: domain.SupportSenderBot, Message: "fresh", CreatedAt: now.Add(-time.Hour)}
	assert.NilError(t, repo.AppendSupportMessage(ctx, old))
	assert.NilError(t, repo.AppendSupportMessage(ctx, fresh))

	assert.Equal(t, pruneTranscripts(ctx, repo, 24*time.Hour, now), int64(1))
	assert.Equal(t, pruneTranscripts(ctx, repo, 24*time.Hour, now), int64(0))
}

package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/store"
)

func TestRecorderPersistsConversationInOrder(t *testing.T) {
	t.Parallel()

	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	rec := NewRecorder(db, Config{QueueSize: 16}, nil)

	base := time.Now()
	rec.Start(domain.Conversation{ID: "conv-1", AssistantID: "a1", StartedAt: base})
	for i, content := range []string{"¡Hola! Soy Ana.", "hola", "respuesta"} {
		role := domain.RoleAssistant
		if i == 1 {
			role = domain.RoleUser
		}
		rec.Append("conv-1", domain.Message{
			ID:        content,
			Seq:       uint64(i + 1),
			Role:      role,
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	rec.End("conv-1", base.Add(time.Minute))

	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := db.GetConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].Content != "hola" || got.Messages[1].Role != domain.RoleUser {
		t.Fatalf("unexpected second message: %+v", got.Messages[1])
	}
	if !got.Ended() {
		t.Fatal("expected conversation to be ended")
	}
	if written := rec.Stats()["written"].(int64); written != 5 {
		t.Fatalf("expected 5 writes, got %d", written)
	}
}

type blockingStore struct {
	mu      sync.Mutex
	release chan struct{}
	appends []string
}

func (b *blockingStore) CreateConversation(context.Context, *domain.Conversation) error {
	<-b.release
	return nil
}

func (b *blockingStore) AppendMessage(_ context.Context, _ string, msg domain.Message) error {
	b.mu.Lock()
	b.appends = append(b.appends, msg.Content)
	b.mu.Unlock()
	return nil
}

func (b *blockingStore) EndConversation(context.Context, string, time.Time) error {
	return errors.New("conversation not found")
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	bs := &blockingStore{release: make(chan struct{})}
	rec := NewRecorder(bs, Config{QueueSize: 1}, nil)

	// The worker picks this up and blocks on it.
	rec.Start(domain.Conversation{ID: "c"})
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rec.Append("c", domain.Message{Content: "kept"})
	rec.Append("c", domain.Message{Content: "dropped"})
	close(bs.release)
	rec.End("c", time.Now())

	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.appends) != 1 || bs.appends[0] != "kept" {
		t.Fatalf("unexpected appends: %v", bs.appends)
	}
	stats := rec.Stats()
	if stats["dropped"].(int64) < 1 {
		t.Fatalf("expected at least one dropped event, got %v", stats["dropped"])
	}
}

func TestRecorderIgnoresEventsAfterClose(t *testing.T) {
	t.Parallel()

	bs := &blockingStore{release: make(chan struct{})}
	close(bs.release)
	rec := NewRecorder(bs, Config{}, nil)
	_ = rec.Close()
	_ = rec.Close()

	rec.Append("c", domain.Message{Content: "late"})

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.appends) != 0 {
		t.Fatalf("expected no appends after close, got %v", bs.appends)
	}
	if rec.Stats()["dropped"].(int64) != 1 {
		t.Fatalf("expected late event to be counted as dropped")
	}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultConversations  = 50
	maxConversations      = 500
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithRetry sets how often writes are retried on SQLITE_BUSY and the base backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *SQLiteStore) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			s.baseDelay = baseDelay
		}
	}
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:         db,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultRetryBaseDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		personality TEXT NOT NULL,
		language TEXT NOT NULL,
		tone TEXT NOT NULL,
		primary_color TEXT NOT NULL,
		secondary_color TEXT NOT NULL,
		logo TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assistants_owner ON assistants(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS knowledge_items (
		id TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT NOT NULL,
		tags_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_assistant ON knowledge_items(assistant_id, created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		last_active_at INTEGER NOT NULL,
		user_location TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_assistant ON conversations(assistant_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_open ON conversations(last_active_at) WHERE ended_at IS NULL;

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		audio_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withRetry runs fn, retrying SQLITE_BUSY and "database is locked" failures
// with exponential backoff.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == s.maxRetries-1 {
			break
		}

		delay := s.baseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.maxRetries, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.withRetry(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), s.now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const assistantColumns = `id, owner_id, name, personality, language, tone,
	primary_color, secondary_color, logo, position, is_active, created_at, updated_at`

func scanAssistant(row rowScanner) (*domain.AssistantConfig, error) {
	var a domain.AssistantConfig
	var tone, position string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Personality, &a.Language, &tone,
		&a.PrimaryColor, &a.SecondaryColor, &a.Logo, &position, &a.IsActive,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	a.Tone = domain.Tone(tone)
	a.Position = domain.Position(position)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	a.Knowledge = []domain.KnowledgeItem{}
	return &a, nil
}

// CreateAssistant inserts an assistant.
func (s *SQLiteStore) CreateAssistant(ctx context.Context, a *domain.AssistantConfig) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Knowledge == nil {
		a.Knowledge = []domain.KnowledgeItem{}
	}

	query := `INSERT INTO assistants (` + assistantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return s.withRetry(ctx, "create assistant", func() error {
		_, err := s.db.ExecContext(ctx, query,
			a.ID, a.OwnerID, a.Name, a.Personality, a.Language, string(a.Tone),
			a.PrimaryColor, a.SecondaryColor, a.Logo, string(a.Position), a.IsActive,
			a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert assistant: %w", err)
		}
		return nil
	})
}

// GetAssistant retrieves an assistant with its knowledge items.
func (s *SQLiteStore) GetAssistant(ctx context.Context, id string) (*domain.AssistantConfig, error) {
	query := `SELECT ` + assistantColumns + ` FROM assistants WHERE id = ?`
	a, err := scanAssistant(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assistant: %w", err)
	}

	items, err := s.queryKnowledge(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE assistant_id = ? ORDER BY created_at, rowid`, id)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		a.Knowledge = items
	}
	return a, nil
}

// ListAssistants returns the owner's assistants, newest first.
func (s *SQLiteStore) ListAssistants(ctx context.Context, ownerID string) ([]*domain.AssistantConfig, error) {
	query := `SELECT ` + assistantColumns + ` FROM assistants
		WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query assistants: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close assistant rows", "error", closeErr)
		}
	}()

	assistants := []*domain.AssistantConfig{}
	byID := make(map[string]*domain.AssistantConfig)
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assistant row: %w", err)
		}
		assistants = append(assistants, a)
		byID[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assistants: %w", err)
	}
	if len(assistants) == 0 {
		return assistants, nil
	}

	items, err := s.queryKnowledge(ctx, `
		SELECT k.id, k.assistant_id, k.title, k.content, k.category, k.tags_json, k.created_at, k.updated_at
		FROM knowledge_items k JOIN assistants a ON a.id = k.assistant_id
		WHERE a.owner_id = ? ORDER BY k.created_at, k.rowid`, ownerID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if a, ok := byID[item.AssistantID]; ok {
			a.Knowledge = append(a.Knowledge, item)
		}
	}
	return assistants, nil
}

// UpdateAssistant overwrites the assistant's scalar fields.
func (s *SQLiteStore) UpdateAssistant(ctx context.Context, a *domain.AssistantConfig) error {
	a.UpdatedAt = s.now()
	query := `
		UPDATE assistants SET
			name = ?, personality = ?, language = ?, tone = ?,
			primary_color = ?, secondary_color = ?, logo = ?, position = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`

	return s.withRetry(ctx, "update assistant", func() error {
		result, err := s.db.ExecContext(ctx, query,
			a.Name, a.Personality, a.Language, string(a.Tone),
			a.PrimaryColor, a.SecondaryColor, a.Logo, string(a.Position),
			a.IsActive, a.UpdatedAt.Unix(), a.ID,
		)
		if err != nil {
			return fmt.Errorf("update assistant: %w", err)
		}
		return requireRow(result)
	})
}

// DeleteAssistant removes an assistant with its knowledge items, conversations and messages.
func (s *SQLiteStore) DeleteAssistant(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete assistant", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete assistant: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		result, err := tx.ExecContext(ctx, `DELETE FROM assistants WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete assistant: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}

		cascade := []string{
			`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE assistant_id = ?)`,
			`DELETE FROM conversations WHERE assistant_id = ?`,
			`DELETE FROM knowledge_items WHERE assistant_id = ?`,
		}
		for _, q := range cascade {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete assistant dependents: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit delete assistant: %w", err)
		}
		return nil
	})
}

const knowledgeColumns = `id, assistant_id, title, content, category, tags_json, created_at, updated_at`

func (s *SQLiteStore) queryKnowledge(ctx context.Context, query string, args ...any) ([]domain.KnowledgeItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close knowledge rows", "error", closeErr)
		}
	}()

	var items []domain.KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge items: %w", err)
	}
	return items, nil
}

func scanKnowledge(row rowScanner) (*domain.KnowledgeItem, error) {
	var k domain.KnowledgeItem
	var tagsJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&k.ID, &k.AssistantID, &k.Title, &k.Content, &k.Category, &tagsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &k.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for knowledge item %s: %w", k.ID, err)
	}
	if k.Tags == nil {
		k.Tags = []string{}
	}
	k.CreatedAt = time.Unix(createdAt, 0)
	k.UpdatedAt = time.Unix(updatedAt, 0)
	return &k, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

// CreateKnowledgeItem appends a knowledge item to an assistant.
func (s *SQLiteStore) CreateKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}

	query := `INSERT INTO knowledge_items (` + knowledgeColumns + `)
		SELECT ?, id, ?, ?, ?, ?, ?, ? FROM assistants WHERE id = ?`
	return s.withRetry(ctx, "create knowledge item", func() error {
		result, err := s.db.ExecContext(ctx, query,
			item.ID, item.Title, item.Content, item.Category, tags,
			item.CreatedAt.Unix(), item.UpdatedAt.Unix(), item.AssistantID,
		)
		if err != nil {
			return fmt.Errorf("insert knowledge item: %w", err)
		}
		return requireRow(result)
	})
}

// GetKnowledgeItem retrieves a single knowledge item.
func (s *SQLiteStore) GetKnowledgeItem(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items WHERE id = ?`
	item, err := scanKnowledge(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan knowledge item: %w", err)
	}
	return item, nil
}

// UpdateKnowledgeItem overwrites title, content, category and tags.
func (s *SQLiteStore) UpdateKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error {
	item.UpdatedAt = s.now()
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}

	query := `UPDATE knowledge_items SET title = ?, content = ?, category = ?, tags_json = ?, updated_at = ? WHERE id = ?`
	return s.withRetry(ctx, "update knowledge item", func() error {
		result, err := s.db.ExecContext(ctx, query,
			item.Title, item.Content, item.Category, tags, item.UpdatedAt.Unix(), item.ID)
		if err != nil {
			return fmt.Errorf("update knowledge item: %w", err)
		}
		return requireRow(result)
	})
}

// DeleteKnowledgeItem removes a knowledge item.
func (s *SQLiteStore) DeleteKnowledgeItem(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete knowledge item", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete knowledge item: %w", err)
		}
		return requireRow(result)
	})
}

// CreateConversation records the start of a widget conversation.
// Conversation and message times are stored in milliseconds.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = s.now()
	}
	if c.LastActiveAt.IsZero() {
		c.LastActiveAt = c.StartedAt
	}

	query := `
		INSERT INTO conversations (id, assistant_id, started_at, last_active_at, user_location, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)`
	return s.withRetry(ctx, "create conversation", func() error {
		_, err := s.db.ExecContext(ctx, query,
			c.ID, c.AssistantID, c.StartedAt.UnixMilli(), c.LastActiveAt.UnixMilli(),
			c.UserLocation, c.UserAgent,
		)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return nil
	})
}

// AppendMessage stores a transcript message and bumps the conversation's
// activity time. An ended conversation has its end moved up to the message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	return s.withRetry(ctx, "append message", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin append message: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// A conversation never ends before its last message.
		ts := msg.Timestamp.UnixMilli()
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_active_at = MAX(last_active_at, ?),
				ended_at = CASE WHEN ended_at IS NOT NULL AND ended_at < ? THEN ? ELSE ended_at END
			WHERE id = ?`,
			ts, ts, ts, conversationID)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content, audio_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, conversationID, int64(msg.Seq), string(msg.Role), msg.Content, msg.AudioURL,
			msg.Timestamp.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit append message: %w", err)
		}
		return nil
	})
}

// EndConversation marks a conversation as ended.
func (s *SQLiteStore) EndConversation(ctx context.Context, id string, endedAt time.Time) error {
	return s.withRetry(ctx, "end conversation", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET ended_at = COALESCE(ended_at, ?) WHERE id = ?`,
			endedAt.UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("end conversation: %w", err)
		}
		return requireRow(result)
	})
}

// EndStaleConversations ends open conversations with no activity for idle.
// The end time is the conversation's last activity.
func (s *SQLiteStore) EndStaleConversations(ctx context.Context, idle time.Duration) (int64, error) {
	threshold := s.now().Add(-idle).UnixMilli()
	var affected int64
	err := s.withRetry(ctx, "end stale conversations", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET ended_at = last_active_at WHERE ended_at IS NULL AND last_active_at < ?`,
			threshold)
		if err != nil {
			return fmt.Errorf("end stale conversations: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var startedAt, lastActive int64
	var endedAt sql.NullInt64
	if err := row.Scan(&c.ID, &c.AssistantID, &startedAt, &endedAt, &lastActive, &c.UserLocation, &c.UserAgent); err != nil {
		return nil, err
	}
	c.StartedAt = time.UnixMilli(startedAt)
	c.LastActiveAt = time.UnixMilli(lastActive)
	if endedAt.Valid {
		ts := time.UnixMilli(endedAt.Int64)
		c.EndedAt = &ts
	}
	return &c, nil
}

const conversationColumns = `id, assistant_id, started_at, ended_at, last_active_at, user_location, user_agent`

// ListConversations returns an assistant's conversations, newest first.
// A non-positive limit selects the default page size.
func (s *SQLiteStore) ListConversations(ctx context.Context, assistantID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = defaultConversations
	}
	limit = min(limit, maxConversations)

	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE assistant_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, assistantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	conversations := []*domain.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// GetConversation retrieves a conversation with its messages in transcript order.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	c, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, role, content, audio_url, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	c.Messages = []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var seq, createdAt int64
		var role string
		if err := rows.Scan(&m.ID, &seq, &role, &m.Content, &m.AudioURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Seq = uint64(seq)
		m.Role = domain.Role(role)
		m.Timestamp = time.UnixMilli(createdAt)
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return c, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}


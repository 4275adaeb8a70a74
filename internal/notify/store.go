package notify

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists notifications in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert writes a notification.
func (s *PostgresStore) Insert(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Title, n.Message, n.Kind, n.IsRead, n.CreatedAt)
	return err
}

// ListByUser returns a user's notifications, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, title, message, type, is_read, created_at FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Kind, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification read for its owner.
func (s *PostgresStore) MarkRead(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MemoryStore keeps notifications in process for tests and the memory
// backend.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Notification
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Notification)}
}

// Insert writes a notification.
func (s *MemoryStore) Insert(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.items[n.ID] = n
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []Notification
	for _, n := range s.items {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags a notification read for its owner.
func (s *MemoryStore) MarkRead(_ context.Context, id string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.IsRead = true
	s.items[id] = n
	return true, nil
}

// StoreNotifier satisfies Notifier by writing straight to a Store, skipping
// the queue. Used with the memory backend and in tests.
type StoreNotifier struct {
	store Store
}

// NewStoreNotifier wraps a store.
func NewStoreNotifier(store Store) *StoreNotifier {
	return &StoreNotifier{store: store}
}

// Notify persists the notification immediately.
func (p *StoreNotifier) Notify(ctx context.Context, userID int64, title, message string, kind Kind) error {
	return p.store.Insert(ctx, Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
}

// Package history persists finished conversations. A backend service is
// preferred when configured; every operation degrades to a local JSON file
// so conversations survive without one.
package history

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/koscakluka/blurry-core/core"
)

const titleRuneLimit = 30

// Message is one persisted conversation line.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
}

// Conversation is one saved session.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Messages []Message `json:"messages"`
}

// Store saves, lists, and deletes conversations.
type Store struct {
	backendURL string
	localPath  string
	client     *http.Client
}

var _ livesession.HistoryStore = (*Store)(nil)

type StoreOption func(*Store)

// WithBackend points the store at a history service. The store falls back to
// the local file when the service is unreachable.
func WithBackend(baseURL string) StoreOption {
	return func(s *Store) { s.backendURL = baseURL }
}

// WithLocalPath overrides the local fallback file location.
func WithLocalPath(path string) StoreOption {
	return func(s *Store) { s.localPath = path }
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		localPath: defaultLocalPath(),
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func defaultLocalPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "blurry_history.json"
	}
	return filepath.Join(dir, "blurry", "history.json")
}

// Save converts a finished transcript into a conversation and persists it.
// Empty transcripts are dropped.
func (s *Store) Save(ctx context.Context, entries []livesession.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var messages []Message
	if err := copier.Copy(&messages, &entries); err != nil {
		return fmt.Errorf("failed to convert transcript entries: %w", err)
	}

	conversation := Conversation{
		ID:       uuid.NewString(),
		Title:    DeriveTitle(entries),
		Date:     time.Now(),
		Messages: messages,
	}

	if s.backendURL != "" {
		if err := s.saveRemote(ctx, conversation); err == nil {
			return nil
		} else {
			logger.Warn("Failed to save conversation to backend, falling back to local file", "error", err)
		}
	}

	return s.saveLocal(conversation)
}

// List returns saved conversations, newest first.
func (s *Store) List(ctx context.Context) ([]Conversation, error) {
	if s.backendURL != "" {
		conversations, err := s.listRemote(ctx)
		if err == nil {
			return conversations, nil
		}
		logger.Warn("Failed to list conversations from backend, falling back to local file", "error", err)
	}

	return s.loadLocal()
}

// Delete removes one conversation by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.backendURL != "" {
		if err := s.deleteRemote(ctx, id); err == nil {
			return nil
		} else {
			logger.Warn("Failed to delete conversation from backend, falling back to local file", "error", err)
		}
	}

	conversations, err := s.loadLocal()
	if err != nil {
		return err
	}

	kept := conversations[:0]
	for _, conversation := range conversations {
		if conversation.ID != id {
			kept = append(kept, conversation)
		}
	}
	return s.writeLocal(kept)
}

// DeriveTitle names a conversation after the first thing the user said,
// clipped to a displayable length.
func DeriveTitle(entries []livesession.Entry) string {
	title := "New Conversation"
	for _, entry := range entries {
		if entry.Role == livesession.RoleUser && entry.Text != "" {
			title = entry.Text
			break
		}
	}

	runes := []rune(title)
	if len(runes) > titleRuneLimit {
		return string(runes[:titleRuneLimit]) + "..."
	}
	return title
}

func (s *Store) saveRemote(ctx context.Context, conversation Conversation) error {
	payload, err := sonic.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.backendURL+"/api/history", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (s *Store) listRemote(ctx context.Context) ([]Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.backendURL+"/api/history", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var conversations []Conversation
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return conversations, nil
}

func (s *Store) deleteRemote(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.backendURL+"/api/history/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (s *Store) saveLocal(conversation Conversation) error {
	conversations, err := s.loadLocal()
	if err != nil {
		return err
	}

	conversations = append([]Conversation{conversation}, conversations...)
	return s.writeLocal(conversations)
}

func (s *Store) loadLocal() ([]Conversation, error) {
	data, err := os.ReadFile(s.localPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local history: %w", err)
	}

	var conversations []Conversation
	if err := sonic.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode local history: %w", err)
	}
	return conversations, nil
}

func (s *Store) writeLocal(conversations []Conversation) error {
	if err := os.MkdirAll(filepath.Dir(s.localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := sonic.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local history: %w", err)
	}
	if err := os.WriteFile(s.localPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write local history: %w", err)
	}
	return nil
}

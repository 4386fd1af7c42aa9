package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crawlmind/internal/model"
)

// SessionContext is the per-conversation state both pipelines work on. The
// credential is only held for the duration of one call and never persisted.
type SessionContext struct {
	Identity      string
	SessionID     string
	Credential    string
	Transcript    []model.ChatTurn
	CollectionRef string
}

func (s *SessionContext) AppendTurn(question, answer string, at time.Time) {
	s.Transcript = append(s.Transcript, model.ChatTurn{Question: question, Answer: answer, AskedAt: at})
}

func (s *SessionContext) Snapshot() model.SessionSnapshot {
	return model.SessionSnapshot{
		Identity:      s.Identity,
		SessionID:     s.SessionID,
		Transcript:    s.Transcript,
		CollectionRef: s.CollectionRef,
	}
}

// SessionStore persists session snapshots between requests.
type SessionStore interface {
	Get(ctx context.Context, identity, sessionID string) (*model.SessionSnapshot, bool, error)
	Set(ctx context.Context, snap model.SessionSnapshot) error
	Delete(ctx context.Context, identity, sessionID string) error
}

const DefaultSessionID = "default"

type SessionService struct {
	store SessionStore
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{store: store}
}

// Open loads the session or starts an empty one.
func (s *SessionService) Open(ctx context.Context, identity, sessionID, credential string) (*SessionContext, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	sess := &SessionContext{
		Identity:   identity,
		SessionID:  sessionID,
		Credential: strings.TrimSpace(credential),
	}
	snap, ok, err := s.store.Get(ctx, identity, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session failed: %w", err)
	}
	if ok {
		sess.Transcript = snap.Transcript
		sess.CollectionRef = snap.CollectionRef
	}
	return sess, nil
}

func (s *SessionService) Save(ctx context.Context, sess *SessionContext) error {
	if err := s.store.Set(ctx, sess.Snapshot()); err != nil {
		return fmt.Errorf("save session failed: %w", err)
	}
	return nil
}

func (s *SessionService) Reset(ctx context.Context, identity, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = DefaultSessionID
	}
	return s.store.Delete(ctx, identity, sessionID)
}

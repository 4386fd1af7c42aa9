package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlmind/internal/model"
)

type mapSessionStore map[string]model.SessionSnapshot

func (m mapSessionStore) Get(_ context.Context, identity, sessionID string) (*model.SessionSnapshot, bool, error) {
	snap, ok := m[identity+"/"+sessionID]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (m mapSessionStore) Set(_ context.Context, snap model.SessionSnapshot) error {
	m[snap.Identity+"/"+snap.SessionID] = snap
	return nil
}

func (m mapSessionStore) Delete(_ context.Context, identity, sessionID string) error {
	delete(m, identity+"/"+sessionID)
	return nil
}

func TestSessionRoundTripDropsCredential(t *testing.T) {
	ctx := context.Background()
	store := mapSessionStore{}
	svc := NewSessionService(store)

	sess, err := svc.Open(ctx, "user_1", "", " secret ")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionID, sess.SessionID)
	assert.Equal(t, "secret", sess.Credential)

	sess.AppendTurn("q", "a", time.Now())
	sess.CollectionRef = "user_1_collection_20240615_120000"
	require.NoError(t, svc.Save(ctx, sess))

	again, err := svc.Open(ctx, "user_1", DefaultSessionID, "")
	require.NoError(t, err)
	assert.Empty(t, again.Credential)
	require.Len(t, again.Transcript, 1)
	assert.Equal(t, "a", again.Transcript[0].Answer)
	assert.Equal(t, sess.CollectionRef, again.CollectionRef)

	require.NoError(t, svc.Reset(ctx, "user_1", ""))
	cleared, err := svc.Open(ctx, "user_1", "", "")
	require.NoError(t, err)
	assert.Empty(t, cleared.Transcript)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerLifecycle(t *testing.T) {
	m := NewSessionManager()
	session := m.Create("qwen")

	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)
	assert.Equal(t, "qwen", got.Model)

	require.NoError(t, m.Delete(session.ID))
	_, err = m.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(session.ID), ErrSessionNotFound)
}

func TestSessionAcquireIsExclusive(t *testing.T) {
	m := NewSessionManager()
	session := m.Create("qwen")

	_, release, err := m.Acquire(session.ID)
	require.NoError(t, err)

	_, _, err = m.Acquire(session.ID)
	assert.ErrorIs(t, err, ErrSessionBusy)

	release()
	_, release, err = m.Acquire(session.ID)
	require.NoError(t, err)
	release()

	_, _, err = m.Acquire("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTranscriptIsACopy(t *testing.T) {
	session := NewSession("qwen")
	session.appendMessage(regularUser("hello"))

	transcript := session.Transcript()
	transcript[0].Content = "changed"

	assert.Equal(t, "hello", session.Transcript()[0].Content)
}

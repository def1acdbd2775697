package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchToOfflineUserPersists(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	before, err := n.notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 0, before)

	nf, err := n.Dispatch(ctx, "bob", "appointment confirmed", "Dr. Lee, 10:00", CategoryAppointment)
	require.NoError(t, err)
	require.NotEmpty(t, nf.ID)

	// no live connection existed, the poll path still sees it
	after, err := n.notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, after)
}

func TestDispatchFansOutToAllConnections(t *testing.T) {
	n := newTestNode(t)
	b1 := newTestClient(n, "bob")
	b2 := newTestClient(n, "bob")
	n.Register(b1)
	n.Register(b2)
	drainFrames(b1)
	drainFrames(b2)

	nf, err := n.Dispatch(context.Background(), "bob", "refill ready", "pick up any time", CategoryPrescription)
	require.NoError(t, err)

	for _, c := range []*Client{b1, b2} {
		f := nextFrame(t, c)
		require.Equal(t, FrameNotification, f.Type)
		require.NotNil(t, f.Notification)
		assert.Equal(t, nf.ID, f.Notification.ID)
		assert.Equal(t, CategoryPrescription, f.Notification.Category)
	}
}

func TestDispatchOneDeadConnectionDoesNotAffectOthers(t *testing.T) {
	n := newTestNode(t)
	b1 := newTestClient(n, "bob")
	b2 := newTestClient(n, "bob")
	n.Register(b1)
	n.Register(b2)
	drainFrames(b1)
	drainFrames(b2)

	// b1's buffer is full: its push drops, b2 still receives
	for b1.push([]byte("x")) {
	}
	nf, err := n.Dispatch(context.Background(), "bob", "reminder", "checkup tomorrow", CategoryReminder)
	require.NoError(t, err)

	f := nextFrame(t, b2)
	require.Equal(t, FrameNotification, f.Type)
	assert.Equal(t, nf.ID, f.Notification.ID)
}

func TestDispatchValidation(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	_, err := n.Dispatch(ctx, "", "t", "b", CategoryAlert)
	assert.Error(t, err)

	_, err = n.Dispatch(ctx, "bob", "t", "b", "gossip")
	assert.Error(t, err)

	count, err := n.notifications.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count, "failed dispatches store nothing")
}

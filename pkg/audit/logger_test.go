package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	events []*Event
	logErr error
	closed bool
}

func (r *recordingLogger) Log(ctx context.Context, event *Event) error {
	if r.logErr != nil {
		return r.logErr
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingLogger) Close() error {
	r.closed = true
	return nil
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	assert.NoError(t, logger.Log(context.Background(), &Event{Action: ActionCreate}))
	assert.NoError(t, logger.Close())
}

func TestMultiLogger(t *testing.T) {
	t.Run("FansOutToEveryBackend", func(t *testing.T) {
		first := &recordingLogger{}
		second := &recordingLogger{}
		multi := NewMultiLogger(first, second)

		event := &Event{Action: ActionGrant, ResourceType: ResourcePolicy, ResourceID: "pol-1"}
		require.NoError(t, multi.Log(context.Background(), event))
		assert.Len(t, first.events, 1)
		assert.Len(t, second.events, 1)
	})

	t.Run("FirstErrorReturnedButAllAttempted", func(t *testing.T) {
		failing := &recordingLogger{logErr: errors.New("backend down")}
		healthy := &recordingLogger{}
		multi := NewMultiLogger(failing, healthy)

		err := multi.Log(context.Background(), &Event{Action: ActionDelete})
		assert.EqualError(t, err, "backend down")
		assert.Len(t, healthy.events, 1, "later backends still receive the event")
	})

	t.Run("CloseClosesEveryBackend", func(t *testing.T) {
		first := &recordingLogger{}
		second := &recordingLogger{}
		multi := NewMultiLogger(first, second)

		require.NoError(t, multi.Close())
		assert.True(t, first.closed)
		assert.True(t, second.closed)
	})
}

func TestEventJSONRoundTrip(t *testing.T) {
	event := &Event{
		ID:           7,
		OccurredAt:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		Actor:        "admin-1",
		Action:       ActionUpdate,
		ResourceType: ResourcePolicy,
		ResourceID:   "pol-1",
		TenantID:     "tenant-1",
		Detail:       map[string]interface{}{"enabled": true},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, restored.ID)
	assert.Equal(t, event.Action, restored.Action)
	assert.Equal(t, true, restored.Detail["enabled"])
}

func TestDefaultRetentionPolicy(t *testing.T) {
	policy := DefaultRetentionPolicy()
	assert.Equal(t, 90*24*time.Hour, policy.KeepFor)
	assert.True(t, policy.Archive)
}

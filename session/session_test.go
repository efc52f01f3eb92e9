package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/engine"
)

func newTestEngine(turns ...[]backend.Event) *engine.Engine {
	b := backend.NewScriptedBackend(turns...)
	b.QueueEvents(backend.SessionStarted{SessionID: "sess-1", Model: "test-model"})
	return engine.New(b)
}

func TestSession_RecordsConversation(t *testing.T) {
	eng := newTestEngine([]backend.Event{
		backend.AgentMessage{Text: "hi there"},
		backend.TaskComplete{LastAgentMessage: "hi there"},
	})

	sess := New(eng, func(o *Options) { o.Model = "test-model" })
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Send(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return len(sess.History()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	history := sess.History()
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, "hi there", history[1].Content)

	sess.Stop()
	assert.False(t, sess.Running())

	// Start, Primary and Completed all crossed the output stream.
	metrics := sess.Metrics()
	assert.Equal(t, uint64(1), metrics.MessagesSent)
	assert.Equal(t, uint64(3), metrics.MessagesReceived)
	assert.Equal(t, uint64(0), metrics.ToolCalls)

	state := sess.State()
	assert.Equal(t, uint64(1), state.TurnCount)
	assert.Equal(t, "test-model", state.Metadata.Model)
	assert.NotEmpty(t, state.Metadata.SessionID)
	assert.Len(t, state.Records, 2)
}

func TestSession_SendRequiresRunning(t *testing.T) {
	eng := newTestEngine()
	sess := New(eng)

	assert.ErrorIs(t, sess.Send(context.Background(), "too early"), ErrNotRunning)

	require.NoError(t, sess.Start(context.Background()))
	sess.Stop()

	assert.ErrorIs(t, sess.Send(context.Background(), "too late"), ErrNotRunning)
}

func TestSession_StartTwice(t *testing.T) {
	eng := newTestEngine()
	sess := New(eng)

	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()

	assert.ErrorIs(t, sess.Start(context.Background()), engine.ErrAlreadyRunning)
}

func TestSession_MetricsCountToolsAndErrors(t *testing.T) {
	eng := newTestEngine([]backend.Event{
		backend.ToolCallBegin{CallID: "c1", Name: "search", Arguments: json.RawMessage(`{"q":"go"}`)},
		backend.ErrorEvent{Message: "boom"},
		backend.TaskComplete{},
	})

	sess := New(eng)
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Send(context.Background(), "do it"))

	require.Eventually(t, func() bool {
		m := sess.Metrics()
		return m.ToolCalls == 1 && m.Errors == 1
	}, 2*time.Second, 10*time.Millisecond)

	sess.Stop()
}

func TestSession_PlanSnapshot(t *testing.T) {
	eng := newTestEngine([]backend.Event{
		backend.ToolCallBegin{
			CallID:    "c1",
			Name:      "update_plan",
			Arguments: json.RawMessage(`{"plan":[{"step":"read","status":"completed"},{"step":"write","status":"in_progress"}]}`),
		},
		backend.TaskComplete{},
	})

	sess := New(eng)
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Send(context.Background(), "plan it"))

	require.Eventually(t, func() bool {
		return len(sess.Plan()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	todos := sess.Plan()
	assert.Equal(t, "read", todos[0].Content)
	assert.Equal(t, "write", todos[1].Content)

	sess.Stop()
}

func TestSession_DurationFreezesOnStop(t *testing.T) {
	eng := newTestEngine()
	sess := New(eng)

	assert.Zero(t, sess.Metrics().Duration)

	require.NoError(t, sess.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, sess.Metrics().Duration, time.Duration(0))

	sess.Stop()
	frozen := sess.Metrics().Duration
	assert.Greater(t, frozen, time.Duration(0))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, sess.Metrics().Duration)
}

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	state := State{
		Records: []Record{
			{Role: RoleUser, Content: "hello", Timestamp: ts},
			{Role: RoleAssistant, Content: "hi", Timestamp: ts.Add(time.Second)},
		},
		TurnCount: 5,
		Metadata: Metadata{
			SessionID: "sess-42",
			Created:   ts,
			Updated:   ts.Add(time.Minute),
			Model:     "test-model",
			Custom:    json.RawMessage(`{"env":"ci"}`),
		},
	}

	eng := newTestEngine()
	path := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, NewFromState(eng, state).Save(path))

	loaded, err := Load(path, eng)
	require.NoError(t, err)

	got := loaded.State()
	assert.Equal(t, state.Records, got.Records)
	assert.Equal(t, state.TurnCount, got.TurnCount)
	assert.Equal(t, "sess-42", got.Metadata.SessionID)
	assert.True(t, got.Metadata.Created.Equal(state.Metadata.Created))
	assert.True(t, got.Metadata.Updated.Equal(state.Metadata.Updated))
	assert.Equal(t, "test-model", got.Metadata.Model)
	assert.JSONEq(t, `{"env":"ci"}`, string(got.Metadata.Custom))
	assert.Len(t, loaded.History(), 2)
}

func TestSession_LoadMissingFile(t *testing.T) {
	eng := newTestEngine()

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), eng)
	assert.Error(t, err)
}

func TestSession_CustomMetadata(t *testing.T) {
	eng := newTestEngine()
	sess := New(eng)

	require.NoError(t, sess.SetCustom("tags.env", "ci"))
	require.NoError(t, sess.SetCustom("attempts", 3))

	assert.Equal(t, "ci", sess.Custom("tags.env").String())
	assert.Equal(t, int64(3), sess.Custom("attempts").Int())
	assert.False(t, sess.Custom("missing").Exists())
}

func TestSession_NewFromStateFillsGaps(t *testing.T) {
	eng := newTestEngine()

	sess := NewFromState(eng, State{TurnCount: 2})

	state := sess.State()
	assert.NotEmpty(t, state.Metadata.SessionID)
	assert.False(t, state.Metadata.Created.IsZero())
	assert.JSONEq(t, `{}`, string(state.Metadata.Custom))
	assert.Equal(t, uint64(2), state.TurnCount)
}

// MockStore is a testify mock of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(state State) error {
	return m.Called(state).Error(0)
}

func (m *MockStore) Load(sessionID string) (State, error) {
	args := m.Called(sessionID)
	return args.Get(0).(State), args.Error(1)
}

func (m *MockStore) List() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Delete(sessionID string) error {
	return m.Called(sessionID).Error(0)
}

var _ Store = (*MockStore)(nil)

func TestSession_PersistUsesStore(t *testing.T) {
	eng := newTestEngine()
	sess := New(eng)

	st := &MockStore{}
	st.On("Save", mock.MatchedBy(func(state State) bool {
		return state.Metadata.SessionID == sess.ID()
	})).Return(nil)

	require.NoError(t, sess.Persist(st))
	st.AssertExpectations(t)
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(2)

	h.Add(RoleUser, "one")
	h.Add(RoleAssistant, "two")
	h.Add(RoleUser, "three")

	records := h.All()
	require.Len(t, records, 2)
	assert.Equal(t, "two", records[0].Content)
	assert.Equal(t, "three", records[1].Content)
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(4)
	h.Add(RoleUser, "one")

	h.Clear()

	assert.Zero(t, h.Len())
	assert.Empty(t, h.All())
}

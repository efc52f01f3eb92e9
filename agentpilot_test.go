package agentpilot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpilot/backend"
	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/engine"
	"github.com/hupe1980/agentpilot/internal/testutil"
	"github.com/hupe1980/agentpilot/processing"
	"github.com/hupe1980/agentpilot/session"
)

func newScriptedPilot(t *testing.T, turns ...[]backend.Event) *AgentPilot {
	t.Helper()

	b := backend.NewScriptedBackend(turns...)
	b.QueueEvents(backend.SessionStarted{SessionID: "sess-1", Model: "test-model"})
	return New(b)
}

func collectStream(t *testing.T, ch <-chan core.OutputMessage) []core.OutputMessage {
	t.Helper()

	var got []core.OutputMessage
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, open := <-ch:
			if !open {
				return got
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestAgentPilot_Query(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Turn().
		AgentDelta("The answer ").
		AgentDelta("is 4").
		Agent("The answer is 4").
		Complete("The answer is 4").
		Build()
	pilot := newScriptedPilot(t, script...)

	answer, err := pilot.Query(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	// Deltas and the final message collapse into the text exactly once.
	assert.Equal(t, "The answer is 4", answer)
}

func TestAgentPilot_QueryReusable(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Turn().Agent("one").Complete("").
		Turn().Agent("two").Complete("").
		Build()
	pilot := newScriptedPilot(t, script...)

	first, err := pilot.Query(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "one", first)

	second, err := pilot.Query(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "two", second)
}

func TestAgentPilot_QueryReturnsErrorOutput(t *testing.T) {
	pilot := newScriptedPilot(t, []backend.Event{
		backend.ErrorEvent{Message: "backend exploded"},
		backend.TaskComplete{},
	})

	_, err := pilot.Query(context.Background(), "boom")
	require.Error(t, err)

	var oe core.OutputError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, core.ErrorKindUnknown, oe.Kind)
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestAgentPilot_Stream(t *testing.T) {
	pilot := newScriptedPilot(t, []backend.Event{
		backend.AgentMessage{Text: "hi"},
		backend.TaskComplete{LastAgentMessage: "hi"},
	})

	stream, err := pilot.Stream(context.Background(), "hello")
	require.NoError(t, err)

	got := collectStream(t, stream)

	types := make([]string, 0, len(got))
	for _, msg := range got {
		types = append(types, core.EventType(msg.Event))
	}
	assert.Equal(t, []string{"start", "primary", "completed"}, types)
}

func TestAgentPilot_StreamWithProcessor(t *testing.T) {
	b := backend.NewScriptedBackend([]backend.Event{
		backend.AgentMessage{Text: "hi"},
		backend.TaskComplete{LastAgentMessage: "hi"},
	})
	b.QueueEvents(backend.SessionStarted{SessionID: "sess-1", Model: "test-model"})

	pilot := New(b, func(o *Options) {
		o.Processor = func() *processing.Processor {
			return processing.NewBuilder().FilterByType("primary").Build()
		}
	})

	stream, err := pilot.Stream(context.Background(), "hello")
	require.NoError(t, err)

	got := collectStream(t, stream)
	require.Len(t, got, 1)
	assert.Equal(t, core.Primary{Text: "hi"}, got[0].Event)
}

func TestAgentPilot_Interactive(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Turn().Agent("one").Complete("one").
		Turn().Agent("two").Complete("two").
		Build()
	pilot := newScriptedPilot(t, script...)

	replies := make(chan string, 8)
	conv, err := pilot.Interactive(context.Background(), func(msg core.OutputMessage) bool {
		if p, ok := msg.Event.(core.Primary); ok {
			replies <- p.Text
		}
		return true
	})
	require.NoError(t, err)

	require.NoError(t, conv.Send(context.Background(), "first"))
	assert.Equal(t, "one", awaitReply(t, replies))

	require.NoError(t, conv.Send(context.Background(), "second"))
	assert.Equal(t, "two", awaitReply(t, replies))

	conv.Close()
	assert.Equal(t, engine.PhaseStopped, conv.Wait())

	assert.ErrorIs(t, conv.Send(context.Background(), "too late"), ErrConversationClosed)
}

func TestAgentPilot_InteractivePlan(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Turn().
		UpdatePlanTool(
			backend.PlanStep{Step: "read", Status: "completed"},
			backend.PlanStep{Step: "write", Status: "pending"},
		).
		Complete("").
		Build()
	pilot := newScriptedPilot(t, script...)

	conv, err := pilot.Interactive(context.Background(), func(core.OutputMessage) bool { return true })
	require.NoError(t, err)
	defer conv.Close()

	require.NoError(t, conv.Send(context.Background(), "plan it"))

	require.Eventually(t, func() bool {
		return len(conv.Plan()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	todos := conv.Plan()
	assert.Equal(t, "read", todos[0].Content)
	assert.Equal(t, core.TodoCompleted, todos[0].Status)
}

func TestAgentPilot_InactiveHandlerDoesNotStall(t *testing.T) {
	pilot := newScriptedPilot(t, []backend.Event{
		backend.AgentMessage{Text: "one"},
		backend.TaskComplete{LastAgentMessage: "one"},
	})

	var calls atomic.Int32
	conv, err := pilot.Interactive(context.Background(), func(core.OutputMessage) bool {
		calls.Add(1)
		return false
	})
	require.NoError(t, err)

	// The stream keeps draining even though the handler bowed out after
	// the first message.
	require.NoError(t, conv.Send(context.Background(), "first"))

	conv.Close()
	conv.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestAgentPilot_NewSession(t *testing.T) {
	script := testutil.NewScriptBuilder().
		Turn().Agent("hello there").Complete("hello there").
		Build()
	pilot := newScriptedPilot(t, script...)

	sess := pilot.NewSession(func(o *session.Options) { o.Model = "test-model" })
	require.NoError(t, sess.Start(context.Background()))

	require.NoError(t, sess.Send(context.Background(), "hi"))
	require.Eventually(t, func() bool {
		return len(sess.History()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sess.Stop()

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, session.RoleUser, hist[0].Role)
	assert.Equal(t, "hi", hist[0].Content)
	assert.Equal(t, session.RoleAssistant, hist[1].Role)
	assert.Equal(t, "hello there", hist[1].Content)
	assert.Equal(t, "test-model", sess.State().Metadata.Model)
}

func TestAgentPilot_Execute(t *testing.T) {
	pilot := newScriptedPilot(t, []backend.Event{
		backend.AgentMessage{Text: "hi"},
		backend.TaskComplete{LastAgentMessage: "hi"},
	})

	inputs := make(chan core.InputMessage, 1)
	inputs <- core.NewInput("hello")
	close(inputs)

	handle, err := pilot.Execute(context.Background(), inputs)
	require.NoError(t, err)
	go func() {
		for range handle.Plans() {
		}
	}()

	got := collectStream(t, handle.Outputs())
	assert.Len(t, got, 3)
	assert.Equal(t, engine.PhaseStopped, handle.Wait())
}

func awaitReply(t *testing.T, replies <-chan string) string {
	t.Helper()

	select {
	case text := <-replies:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return ""
	}
}

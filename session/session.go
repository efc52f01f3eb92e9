package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentpilot/core"
	"github.com/hupe1980/agentpilot/engine"
	"github.com/hupe1980/agentpilot/logging"
)

// ErrNotRunning is returned by Send when the session has not been started
// or has already stopped.
var ErrNotRunning = errors.New("session is not running")

// DefaultInputBuffer is the capacity of the input channel between Send and
// the engine.
const DefaultInputBuffer = 16

// State is the serializable snapshot of a session: the recorded
// conversation, the number of user turns submitted and the session
// metadata. It is what Save writes and a Store persists.
type State struct {
	Records   []Record `json:"records"`
	TurnCount uint64   `json:"turn_count"`
	Metadata  Metadata `json:"metadata"`
}

// clone returns a deep copy safe for independent mutation.
func (st State) clone() State {
	out := st
	out.Records = make([]Record, len(st.Records))
	copy(out.Records, st.Records)
	out.Metadata.Custom = append(json.RawMessage(nil), st.Metadata.Custom...)
	return out
}

// Metadata describes a session: its identity, timestamps, the model in use
// and a free-form custom JSON document.
type Metadata struct {
	SessionID string          `json:"session_id"`
	Created   time.Time       `json:"created"`
	Updated   time.Time       `json:"updated"`
	Model     string          `json:"model,omitempty"`
	Custom    json.RawMessage `json:"custom"`
}

// Metrics counts session activity. Duration covers the time since Start
// while the session is live and freezes at Stop.
type Metrics struct {
	MessagesSent     uint64
	MessagesReceived uint64
	ToolCalls        uint64
	Errors           uint64
	Duration         time.Duration
}

// Options configures a Session using the functional options pattern.
type Options struct {
	// HistorySize bounds the message history ring.
	HistorySize int

	// InputBuffer sets the capacity of the channel between Send and the
	// engine.
	InputBuffer int

	// Model is recorded in the session metadata.
	Model string

	// Logger provides structured logging. Defaults to NoOp logger if nil.
	Logger logging.Logger
}

func newOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		HistorySize: DefaultHistorySize,
		InputBuffer: DefaultInputBuffer,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}

	if opts.InputBuffer < 0 {
		opts.InputBuffer = 0
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return opts
}

// Session tracks one conversation against an engine: message history,
// metrics, the latest plan and a serializable snapshot. All methods are
// safe for concurrent use.
type Session struct {
	engine *engine.Engine
	opts   Options

	mu      sync.RWMutex
	state   State
	history *History
	metrics Metrics
	todos   []core.TodoItem
	started time.Time
	inputs  chan core.InputMessage
	handle  *engine.Handle

	wg sync.WaitGroup
}

// New creates a Session over the given engine with a fresh identity.
//
// Example:
//
//	sess := New(eng,
//	    func(o *Options) { o.Model = "claude-sonnet-4-5" },
//	    func(o *Options) { o.HistorySize = 200 },
//	)
func New(eng *engine.Engine, optFns ...func(o *Options)) *Session {
	opts := newOptions(optFns...)

	now := time.Now()
	state := State{
		Metadata: Metadata{
			SessionID: uuid.NewString(),
			Created:   now,
			Updated:   now,
			Model:     opts.Model,
			Custom:    json.RawMessage("{}"),
		},
	}

	return &Session{engine: eng, opts: opts, state: state, history: NewHistory(opts.HistorySize)}
}

// NewFromState creates a Session that resumes from a previously saved
// snapshot. The history ring is rebuilt from the snapshot's records;
// metrics start fresh. The session is not started.
func NewFromState(eng *engine.Engine, state State, optFns ...func(o *Options)) *Session {
	opts := newOptions(optFns...)

	state = state.clone()
	if state.Metadata.SessionID == "" {
		state.Metadata.SessionID = uuid.NewString()
	}
	if state.Metadata.Created.IsZero() {
		now := time.Now()
		state.Metadata.Created = now
		state.Metadata.Updated = now
	}
	if len(state.Metadata.Custom) == 0 {
		state.Metadata.Custom = json.RawMessage("{}")
	}

	history := NewHistory(opts.HistorySize)
	for _, rec := range state.Records {
		history.AddRecord(rec)
	}

	return &Session{engine: eng, opts: opts, state: state, history: history}
}

// Load reads a session snapshot from a JSON file written by Save and
// creates a Session resuming from it.
func Load(path string, eng *engine.Engine, optFns ...func(o *Options)) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}

	return NewFromState(eng, state, optFns...), nil
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Metadata.SessionID
}

// Start launches the session's engine execution and begins recording its
// output stream. It returns engine.ErrAlreadyRunning if the session is
// already started.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.handle != nil {
		s.mu.Unlock()
		return engine.ErrAlreadyRunning
	}

	inputs := make(chan core.InputMessage, s.opts.InputBuffer)
	handle, err := s.engine.Execute(ctx, inputs)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.inputs = inputs
	s.handle = handle
	s.started = time.Now()
	id := s.state.Metadata.SessionID
	s.mu.Unlock()

	s.wg.Add(2)
	go s.consumeOutputs(handle.Outputs())
	go s.consumePlans(handle.Plans())

	s.opts.Logger.Info("session started", "session_id", id, "execution_id", handle.ID)

	return nil
}

// Send submits one user turn. The turn is recorded in the history and the
// snapshot before submission; a submission that fails because the session
// stopped or ctx was cancelled leaves the record in place.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.handle == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	inputs, done := s.inputs, s.handle.Done()

	rec := Record{Role: RoleUser, Content: text, Timestamp: time.Now()}
	s.history.AddRecord(rec)
	s.state.Records = append(s.state.Records, rec)
	s.state.TurnCount++
	s.state.Metadata.Updated = rec.Timestamp
	s.metrics.MessagesSent++
	s.mu.Unlock()

	select {
	case inputs <- core.NewInput(text):
		return nil
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop requests a stop on the running execution, waits for it to wind
// down and freezes the session metrics. It is a no-op on a session that
// is not running.
func (s *Session) Stop() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.inputs = nil
	s.mu.Unlock()

	if handle == nil {
		return
	}

	handle.Controller.Stop()
	<-handle.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.metrics.Duration = time.Since(s.started)
	s.started = time.Time{}
	id := s.state.Metadata.SessionID
	s.mu.Unlock()

	s.opts.Logger.Info("session stopped", "session_id", id)
}

// Running reports whether the session has a live execution.
func (s *Session) Running() bool {
	s.mu.RLock()
	handle := s.handle
	s.mu.RUnlock()

	if handle == nil {
		return false
	}

	select {
	case <-handle.Done():
		return false
	default:
		return true
	}
}

// Controller returns the lifecycle controller of the running execution,
// or nil when the session is not started.
func (s *Session) Controller() *engine.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return nil
	}
	return s.handle.Controller
}

// History returns a copy of the recorded message history.
func (s *Session) History() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.All()
}

// Metrics returns a snapshot of the session metrics.
func (s *Session) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.metrics
	if !s.started.IsZero() {
		m.Duration = time.Since(s.started)
	}
	return m
}

// Plan returns the most recent plan snapshot received on the plan stream.
func (s *Session) Plan() []core.TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.TodoItem, len(s.todos))
	copy(out, s.todos)
	return out
}

// State returns a deep copy of the session snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// SetCustom patches a value into the custom metadata document at the
// given sjson path.
func (s *Session) SetCustom(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	patched, err := sjson.SetBytes(s.state.Metadata.Custom, path, value)
	if err != nil {
		return fmt.Errorf("patch custom metadata: %w", err)
	}

	s.state.Metadata.Custom = patched
	s.state.Metadata.Updated = time.Now()

	return nil
}

// Custom reads a value from the custom metadata document at the given
// gjson path.
func (s *Session) Custom(path string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.GetBytes(s.state.Metadata.Custom, path)
}

// Save writes the session snapshot to a JSON file.
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	return nil
}

// Persist saves the session snapshot into the given store under the
// session id.
func (s *Session) Persist(st Store) error {
	return st.Save(s.State())
}

func (s *Session) consumeOutputs(outputs <-chan core.OutputMessage) {
	defer s.wg.Done()

	for msg := range outputs {
		s.recordOutput(msg)
	}
}

func (s *Session) recordOutput(msg core.OutputMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.MessagesReceived++

	switch ev := msg.Event.(type) {
	case core.Primary:
		rec := Record{Role: RoleAssistant, Content: ev.Text, Timestamp: time.Now()}
		s.history.AddRecord(rec)
		s.state.Records = append(s.state.Records, rec)
		s.state.Metadata.Updated = rec.Timestamp
	case core.ToolStart:
		s.metrics.ToolCalls++
	case core.OutputError:
		s.metrics.Errors++
	}
}

func (s *Session) consumePlans(plans <-chan core.PlanMessage) {
	defer s.wg.Done()

	for plan := range plans {
		s.mu.Lock()
		s.todos = append(s.todos[:0], plan.Todos...)
		s.mu.Unlock()
	}
}

// Package session implements the intake conversation: it walks a respondent
// through the catalog one question at a time, keeps the chat transcript and
// the answer map, and persists all of it after every change.
//
// Host replies are not appended immediately. Start and Submit return a Turn
// that the driver delivers after the turn's delay, which lets a front end
// show a typing indicator. Only one turn is pending at a time and answers
// are refused until it has been delivered.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/c360studio/intake/catalog"
	"github.com/c360studio/intake/storage"
	"github.com/c360studio/intake/validation"
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseComplete   Phase = "complete"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventReset    = "reset"
)

var (
	// ErrNotInProgress is returned when an answer arrives outside an active session.
	ErrNotInProgress = errors.New("session is not in progress")

	// ErrHostTyping is returned when an answer arrives while a host turn is pending.
	ErrHostTyping = errors.New("host reply pending")

	// ErrNoQuestions is returned by Start when the catalog is empty.
	ErrNoQuestions = errors.New("catalog has no questions")
)

// Turn is a host reply waiting to be delivered.
type Turn struct {
	// Delay is how long the host should appear to be typing.
	Delay time.Duration

	// Gen identifies the machine generation the turn belongs to. Reset
	// starts a new generation, making older turns stale.
	Gen uint64
}

// Outcome reports the result of Submit.
type Outcome struct {
	Validation validation.Result
	Field      string

	// Turn is the host reply to schedule; nil when the answer was rejected.
	Turn *Turn

	// Completed is set when this answer finished the catalog.
	Completed bool
}

// Machine is the conversation state machine. It is not safe for concurrent
// use; drive it from a single goroutine.
type Machine struct {
	questions []catalog.Question
	store     *storage.Store
	phase     *fsm.FSM

	logger     *slog.Logger
	now        func() time.Time
	newID      IDSource
	observer   Observer
	startDelay time.Duration
	replyDelay time.Duration
	greeting   string
	completion string

	transcript []Message
	answers    map[string]string
	index      int

	pending *Turn
	gen     uint64
}

// New creates a machine over a sorted catalog. The store may be nil, in
// which case nothing is persisted.
func New(questions []catalog.Question, store *storage.Store, opts ...Option) *Machine {
	m := &Machine{
		questions:  slices.Clone(questions),
		store:      store,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      NewULIDSource(),
		observer:   nopObserver{},
		startDelay: DefaultStartDelay,
		replyDelay: DefaultReplyDelay,
		greeting:   DefaultGreeting,
		completion: DefaultCompletion,
		answers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.phase = newPhaseFSM(m.logger)
	return m
}

func newPhaseFSM(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseNotStarted),
		fsm.Events{
			{Name: eventStart, Src: []string{string(PhaseNotStarted)}, Dst: string(PhaseInProgress)},
			{Name: eventComplete, Src: []string{string(PhaseInProgress)}, Dst: string(PhaseComplete)},
			{Name: eventReset, Src: []string{string(PhaseInProgress), string(PhaseComplete)}, Dst: string(PhaseNotStarted)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("Session phase changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// Restore loads the persisted transcript, answers and progress and derives
// the phase from them. Missing or corrupt records start empty.
//
// A session interrupted while the host was typing has no prompt for the
// current position. In that case a host turn is queued and returned so the
// driver can schedule it; otherwise Restore returns nil.
func (m *Machine) Restore(ctx context.Context) *Turn {
	m.gen++
	m.pending = nil

	if m.store != nil {
		m.transcript = storage.Load(ctx, m.store, storage.KeyTranscript, []Message{})
		m.answers = storage.Load(ctx, m.store, storage.KeyAnswers, map[string]string{})
		m.index = storage.Load(ctx, m.store, storage.KeyProgress, 0)
	}
	if m.answers == nil {
		m.answers = make(map[string]string)
	}
	if m.transcript == nil {
		m.transcript = []Message{}
	}
	if m.index < 0 || m.index > len(m.questions) {
		m.logger.Warn("Stored progress out of range, clamping",
			"index", m.index, "questions", len(m.questions))
		m.index = max(0, min(m.index, len(m.questions)))
	}

	switch {
	case m.IsComplete():
		m.phase.SetState(string(PhaseComplete))
	case m.HasStarted():
		m.phase.SetState(string(PhaseInProgress))
	default:
		m.phase.SetState(string(PhaseNotStarted))
	}

	m.observer.Progressed(m.index, len(m.questions))
	m.logger.Debug("Session restored",
		"phase", m.Phase(),
		"index", m.index,
		"messages", len(m.transcript))

	if !m.HasStarted() || !m.needsHostTurn() {
		return nil
	}
	m.logger.Info("Resuming interrupted host reply", "index", m.index)
	return m.queue(m.replyDelay)
}

// needsHostTurn reports whether the transcript is missing the host message
// for the current position.
func (m *Machine) needsHostTurn() bool {
	if len(m.transcript) == 0 {
		return true
	}
	if m.transcript[len(m.transcript)-1].Role == RoleGuest {
		return true
	}
	return m.index == 0 && len(m.transcript) == 1
}

// Start greets the respondent and queues the first question. It does nothing
// unless the session has not started yet.
func (m *Machine) Start(ctx context.Context) (*Turn, error) {
	if len(m.questions) == 0 {
		return nil, ErrNoQuestions
	}
	if m.Phase() != PhaseNotStarted {
		return nil, nil
	}

	if err := m.phase.Event(ctx, eventStart); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	m.append(RoleHost, m.greeting)
	m.persist(ctx)

	m.observer.Started()
	m.observer.Progressed(m.index, len(m.questions))
	m.logger.Info("Session started", "questions", len(m.questions))

	return m.queue(m.startDelay), nil
}

// Submit validates raw against the current question. A rejected answer
// leaves the session untouched. An accepted answer is recorded trimmed, the
// session advances, and the host reply is returned as a pending Turn.
func (m *Machine) Submit(ctx context.Context, raw string) (Outcome, error) {
	if m.Phase() != PhaseInProgress {
		return Outcome{}, ErrNotInProgress
	}
	if m.pending != nil {
		return Outcome{}, ErrHostTyping
	}
	q, ok := m.CurrentQuestion()
	if !ok {
		return Outcome{}, ErrNotInProgress
	}

	res := validation.Validate(q, raw)
	out := Outcome{Validation: res, Field: q.Field}
	if !res.Accepted {
		m.observer.Rejected(q.Field, res.Reason)
		m.logger.Debug("Answer rejected", "field", q.Field, "reason", res.Reason)
		return out, nil
	}

	answer := strings.TrimSpace(raw)
	m.append(RoleGuest, answer)
	m.answers[q.Field] = answer
	m.index++

	if m.index >= len(m.questions) {
		if err := m.phase.Event(ctx, eventComplete); err != nil {
			m.logger.Warn("Phase transition failed", "event", eventComplete, "error", err)
		}
		out.Completed = true
	}
	m.persist(ctx)

	m.observer.Accepted(q.Field)
	m.observer.Progressed(m.index, len(m.questions))
	if out.Completed {
		m.observer.Completed()
		m.logger.Info("Session complete", "answers", len(m.answers))
	}

	out.Turn = m.queue(m.replyDelay)
	return out, nil
}

// Deliver appends the host message of turn. It returns false when turn is
// not the pending turn, for example after a reset.
func (m *Machine) Deliver(ctx context.Context, turn *Turn) bool {
	if turn == nil || m.pending != turn || turn.Gen != m.gen {
		return false
	}
	m.pending = nil

	switch {
	case m.Phase() == PhaseComplete:
		m.append(RoleHost, m.completionText())
	case m.index < len(m.questions):
		m.append(RoleHost, m.questions[m.index].Text)
	default:
		return false
	}
	m.persist(ctx)
	return true
}

// Flush delivers the pending turn immediately, if any.
func (m *Machine) Flush(ctx context.Context) bool {
	return m.Deliver(ctx, m.pending)
}

// Reset discards the transcript, the answers and the progress, and cancels
// any pending turn. It is valid in every phase.
func (m *Machine) Reset(ctx context.Context) {
	m.gen++
	m.pending = nil

	if m.phase.Can(eventReset) {
		if err := m.phase.Event(ctx, eventReset); err != nil {
			m.logger.Warn("Phase transition failed", "event", eventReset, "error", err)
			m.phase.SetState(string(PhaseNotStarted))
		}
	}

	m.transcript = []Message{}
	m.answers = make(map[string]string)
	m.index = 0
	m.persist(ctx)

	m.observer.Reset()
	m.observer.Progressed(0, len(m.questions))
	m.logger.Info("Session reset")
}

// CurrentQuestion returns the question awaiting an answer.
func (m *Machine) CurrentQuestion() (catalog.Question, bool) {
	if m.index < 0 || m.index >= len(m.questions) {
		return catalog.Question{}, false
	}
	return m.questions[m.index], true
}

// IsMultiline reports whether the current question expects a long-form answer.
func (m *Machine) IsMultiline() bool {
	q, ok := m.CurrentQuestion()
	return ok && q.IsLongForm()
}

// HasStarted reports whether the conversation has begun.
func (m *Machine) HasStarted() bool {
	return len(m.transcript) > 0 || m.index > 0
}

// IsComplete reports whether every question has been answered.
func (m *Machine) IsComplete() bool {
	return len(m.questions) > 0 && m.index >= len(m.questions)
}

// Phase returns the lifecycle stage.
func (m *Machine) Phase() Phase {
	return Phase(m.phase.Current())
}

// Progress returns the number of answered questions and the catalog size.
func (m *Machine) Progress() (current, total int) {
	return m.index, len(m.questions)
}

// Transcript returns a copy of the chat transcript.
func (m *Machine) Transcript() []Message {
	return slices.Clone(m.transcript)
}

// Answers returns a copy of the answer map.
func (m *Machine) Answers() map[string]string {
	return maps.Clone(m.answers)
}

// Pending returns the host turn awaiting delivery, or nil.
func (m *Machine) Pending() *Turn {
	return m.pending
}

func (m *Machine) queue(delay time.Duration) *Turn {
	m.pending = &Turn{Delay: delay, Gen: m.gen}
	return m.pending
}

func (m *Machine) append(role Role, content string) {
	t := m.now()
	m.transcript = append(m.transcript, Message{
		ID:        m.newID(t),
		Role:      role,
		Content:   content,
		Timestamp: t,
	})
}

func (m *Machine) completionText() string {
	name := strings.TrimSpace(m.answers["name"])
	if name == "" {
		name = "there"
	}
	return strings.ReplaceAll(m.completion, "{name}", name)
}

// persist writes all three records. Failures are logged and swallowed so a
// broken store never blocks the conversation.
func (m *Machine) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	errs := []error{
		storage.Save(ctx, m.store, storage.KeyTranscript, m.transcript),
		storage.Save(ctx, m.store, storage.KeyAnswers, m.answers),
		storage.Save(ctx, m.store, storage.KeyProgress, m.index),
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("Persisting session failed", "session", m.store.Session(), "error", err)
	}
}

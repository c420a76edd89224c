package session

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/intake/catalog"
	"github.com/c360studio/intake/storage"
	"github.com/c360studio/intake/validation"
)

func scenarioCatalog() []catalog.Question {
	return []catalog.Question{
		{ID: "1", Order: 1, Field: "name", Text: "What's your name?", Type: catalog.TypeText,
			Rules: []catalog.Rule{catalog.Required{}}},
		{ID: "2", Order: 2, Field: "email", Text: "What's your email?", Type: catalog.TypeEmail,
			Rules: []catalog.Rule{catalog.Required{}, catalog.Pattern{Expr: regexp.MustCompile(`^[^@]+@[^@]+$`)}}},
	}
}

func newStore(t *testing.T, b storage.Backend) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(b, "test")
	require.NoError(t, err)
	return s
}

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newMachine(t *testing.T, qs []catalog.Question, b storage.Backend, opts ...Option) *Machine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	m := New(qs, newStore(t, b), opts...)
	m.Restore(context.Background())
	return m
}

type recordingObserver struct {
	started, completed, resets int
	accepted                   []string
	rejected                   []validation.Reason
	lastIndex, lastTotal       int
}

func (o *recordingObserver) Started()                               { o.started++ }
func (o *recordingObserver) Accepted(field string)                  { o.accepted = append(o.accepted, field) }
func (o *recordingObserver) Rejected(_ string, r validation.Reason) { o.rejected = append(o.rejected, r) }
func (o *recordingObserver) Progressed(index, total int)            { o.lastIndex, o.lastTotal = index, total }
func (o *recordingObserver) Completed()                             { o.completed++ }
func (o *recordingObserver) Reset()                                 { o.resets++ }

func TestScenario(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := newMachine(t, scenarioCatalog(), storage.NewMemoryBackend(), WithObserver(obs))

	assert.Equal(t, PhaseNotStarted, m.Phase())
	assert.False(t, m.HasStarted())

	turn, err := m.Start(ctx)
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, DefaultStartDelay, turn.Delay)
	assert.Len(t, m.Transcript(), 1)
	require.True(t, m.Deliver(ctx, turn))

	tr := m.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, RoleHost, tr[0].Role)
	assert.Equal(t, DefaultGreeting, tr[0].Content)
	assert.Equal(t, "What's your name?", tr[1].Content)
	assert.Equal(t, PhaseInProgress, m.Phase())

	out, err := m.Submit(ctx, "")
	require.NoError(t, err)
	assert.False(t, out.Validation.Accepted)
	assert.Equal(t, validation.ReasonRequired, out.Validation.Reason)
	assert.Nil(t, out.Turn)
	assert.Len(t, m.Transcript(), 2)
	assert.Empty(t, m.Answers())

	out, err = m.Submit(ctx, "Ada")
	require.NoError(t, err)
	require.True(t, out.Validation.Accepted)
	assert.Equal(t, "name", out.Field)
	assert.Equal(t, "Ada", m.Answers()["name"])
	cur, total := m.Progress()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 2, total)
	require.True(t, m.Deliver(ctx, out.Turn))
	tr = m.Transcript()
	require.Len(t, tr, 4)
	assert.Equal(t, RoleGuest, tr[2].Role)
	assert.Equal(t, "What's your email?", tr[3].Content)

	out, err = m.Submit(ctx, "not-an-email")
	require.NoError(t, err)
	assert.Equal(t, validation.ReasonFormat, out.Validation.Reason)
	assert.Equal(t, validation.MsgEmailFormat, out.Validation.Message)

	out, err = m.Submit(ctx, "ada@example.com")
	require.NoError(t, err)
	require.True(t, out.Validation.Accepted)
	assert.True(t, out.Completed)
	assert.Equal(t, PhaseComplete, m.Phase())
	assert.True(t, m.IsComplete())
	require.True(t, m.Flush(ctx))

	tr = m.Transcript()
	require.Len(t, tr, 6)
	assert.Contains(t, tr[5].Content, "Thank you Ada")
	_, ok := m.CurrentQuestion()
	assert.False(t, ok)

	_, err = m.Submit(ctx, "more")
	assert.ErrorIs(t, err, ErrNotInProgress)

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, []string{"name", "email"}, obs.accepted)
	assert.Equal(t, []validation.Reason{validation.ReasonRequired, validation.ReasonFormat}, obs.rejected)
	assert.Equal(t, 2, obs.lastIndex)
}

func TestMessageIDsAreUniqueAndOrdered(t *testing.T) {
	ctx := context.Background()
	m := New(scenarioCatalog(), nil, WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	}))

	_, err := m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)
	_, err = m.Submit(ctx, "Ada")
	require.NoError(t, err)
	m.Flush(ctx)

	tr := m.Transcript()
	require.Len(t, tr, 4)
	for i := 1; i < len(tr); i++ {
		assert.Less(t, tr[i-1].ID, tr[i].ID)
	}
}

func TestSubmitRefusedWhileHostTyping(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, scenarioCatalog(), storage.NewMemoryBackend())

	_, err := m.Submit(ctx, "Ada")
	assert.ErrorIs(t, err, ErrNotInProgress)

	turn, err := m.Start(ctx)
	require.NoError(t, err)

	_, err = m.Submit(ctx, "Ada")
	assert.ErrorIs(t, err, ErrHostTyping)
	assert.Empty(t, m.Answers())

	require.True(t, m.Deliver(ctx, turn))
	assert.Nil(t, m.Pending())
	assert.False(t, m.Deliver(ctx, turn), "a turn is delivered once")

	out, err := m.Submit(ctx, "Ada")
	require.NoError(t, err)
	assert.True(t, out.Validation.Accepted)
}

func TestStartPreconditions(t *testing.T) {
	ctx := context.Background()

	m := newMachine(t, nil, storage.NewMemoryBackend())
	_, err := m.Start(ctx)
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.False(t, m.HasStarted())

	m = newMachine(t, scenarioCatalog(), storage.NewMemoryBackend())
	_, err = m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)

	turn, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Len(t, m.Transcript(), 2)
}

func TestCurrentQuestionTracksAcceptedAnswers(t *testing.T) {
	ctx := context.Background()
	var qs []catalog.Question
	for i := 0; i < 5; i++ {
		qs = append(qs, catalog.Question{Order: i + 1, Field: fmt.Sprintf("f%d", i), Text: fmt.Sprintf("Q%d?", i)})
	}

	m := newMachine(t, qs, storage.NewMemoryBackend(), WithTypingDelay(0))
	_, err := m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)

	for n := 0; n < len(qs); n++ {
		q, ok := m.CurrentQuestion()
		require.True(t, ok)
		assert.Equal(t, qs[n].Field, q.Field)

		out, err := m.Submit(ctx, fmt.Sprintf("answer %d", n))
		require.NoError(t, err)
		require.True(t, out.Validation.Accepted)
		assert.Equal(t, time.Duration(0), out.Turn.Delay)
		m.Flush(ctx)
	}

	_, ok := m.CurrentQuestion()
	assert.False(t, ok)
	assert.True(t, m.IsComplete())
	assert.Len(t, m.Answers(), len(qs))
}

func TestResetFromAnyState(t *testing.T) {
	ctx := context.Background()

	steps := map[string]func(m *Machine){
		"not started": func(m *Machine) {},
		"typing": func(m *Machine) {
			_, _ = m.Start(ctx)
		},
		"in progress": func(m *Machine) {
			_, _ = m.Start(ctx)
			m.Flush(ctx)
			_, _ = m.Submit(ctx, "Ada")
			m.Flush(ctx)
		},
		"complete": func(m *Machine) {
			_, _ = m.Start(ctx)
			m.Flush(ctx)
			_, _ = m.Submit(ctx, "Ada")
			m.Flush(ctx)
			_, _ = m.Submit(ctx, "ada@example.com")
			m.Flush(ctx)
		},
	}

	for name, step := range steps {
		t.Run(name, func(t *testing.T) {
			b := storage.NewMemoryBackend()
			obs := &recordingObserver{}
			m := newMachine(t, scenarioCatalog(), b, WithObserver(obs))
			step(m)
			stale := m.Pending()

			m.Reset(ctx)
			assert.Empty(t, m.Transcript())
			assert.Empty(t, m.Answers())
			cur, _ := m.Progress()
			assert.Equal(t, 0, cur)
			assert.Equal(t, PhaseNotStarted, m.Phase())
			assert.Nil(t, m.Pending())
			assert.False(t, m.Deliver(ctx, stale))
			assert.Equal(t, 1, obs.resets)

			// The cleared state is what a fresh machine restores.
			again := newMachine(t, scenarioCatalog(), b)
			assert.False(t, again.HasStarted())
			assert.Equal(t, PhaseNotStarted, again.Phase())

			turn, err := m.Start(ctx)
			require.NoError(t, err)
			assert.NotNil(t, turn)
		})
	}
}

func TestRestoreResumesSession(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()

	m := newMachine(t, scenarioCatalog(), b)
	_, err := m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)
	_, err = m.Submit(ctx, "Ada")
	require.NoError(t, err)
	m.Flush(ctx)

	resumed := New(scenarioCatalog(), newStore(t, b))
	turn := resumed.Restore(ctx)
	assert.Nil(t, turn)
	assert.Equal(t, PhaseInProgress, resumed.Phase())
	assert.Equal(t, m.Transcript(), resumed.Transcript())
	assert.Equal(t, map[string]string{"name": "Ada"}, resumed.Answers())
	q, ok := resumed.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "email", q.Field)
}

func TestRestoreRequeuesInterruptedTurn(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		run      func(m *Machine)
		wantLast string
	}{
		{
			name: "welcome only",
			run: func(m *Machine) {
				_, _ = m.Start(ctx)
			},
			wantLast: "What's your name?",
		},
		{
			name: "guest answered last",
			run: func(m *Machine) {
				_, _ = m.Start(ctx)
				m.Flush(ctx)
				_, _ = m.Submit(ctx, "Ada")
			},
			wantLast: "What's your email?",
		},
		{
			name: "completion pending",
			run: func(m *Machine) {
				_, _ = m.Start(ctx)
				m.Flush(ctx)
				_, _ = m.Submit(ctx, "Ada")
				m.Flush(ctx)
				_, _ = m.Submit(ctx, "ada@example.com")
			},
			wantLast: "Perfect! Thank you Ada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := storage.NewMemoryBackend()
			tt.run(newMachine(t, scenarioCatalog(), b))

			resumed := New(scenarioCatalog(), newStore(t, b))
			turn := resumed.Restore(ctx)
			require.NotNil(t, turn)
			require.True(t, resumed.Deliver(ctx, turn))

			tr := resumed.Transcript()
			assert.Contains(t, tr[len(tr)-1].Content, tt.wantLast)
			assert.Nil(t, resumed.Restore(ctx))
		})
	}
}

func TestRestoreCorruptRecords(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()
	require.NoError(t, b.Put(ctx, "test."+storage.KeyTranscript, []byte("{{{")))
	require.NoError(t, b.Put(ctx, "test."+storage.KeyAnswers, []byte("null")))
	require.NoError(t, b.Put(ctx, "test."+storage.KeyProgress, []byte(`"two"`)))

	m := New(scenarioCatalog(), newStore(t, b))
	assert.Nil(t, m.Restore(ctx))
	assert.Empty(t, m.Transcript())
	assert.NotNil(t, m.Answers())
	assert.Equal(t, PhaseNotStarted, m.Phase())
}

func TestRestoreClampsProgress(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()
	require.NoError(t, b.Put(ctx, "test."+storage.KeyProgress, []byte("9")))

	m := New(scenarioCatalog(), newStore(t, b))
	m.Restore(ctx)
	cur, total := m.Progress()
	assert.Equal(t, total, cur)
	assert.Equal(t, PhaseComplete, m.Phase())
}

func TestIsMultiline(t *testing.T) {
	ctx := context.Background()
	qs := []catalog.Question{
		{Order: 1, Field: "name", Text: "Name?", Type: catalog.TypeText},
		{Order: 2, Field: "bio", Text: "Bio?", Type: catalog.TypeText},
	}
	m := newMachine(t, qs, storage.NewMemoryBackend())
	_, err := m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)

	assert.False(t, m.IsMultiline())
	_, err = m.Submit(ctx, "Ada")
	require.NoError(t, err)
	assert.True(t, m.IsMultiline())
}

func TestCustomWording(t *testing.T) {
	ctx := context.Background()
	qs := []catalog.Question{{Order: 1, Field: "email", Text: "Email?"}}
	m := newMachine(t, qs, storage.NewMemoryBackend(),
		WithGreeting("Hi!"),
		WithCompletion("Bye {name}."))

	_, err := m.Start(ctx)
	require.NoError(t, err)
	m.Flush(ctx)
	_, err = m.Submit(ctx, "x@y.z")
	require.NoError(t, err)
	m.Flush(ctx)

	tr := m.Transcript()
	assert.Equal(t, "Hi!", tr[0].Content)
	assert.Equal(t, "Bye there.", tr[len(tr)-1].Content)
}

func TestTurnDelays(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		opts         []Option
		start, reply time.Duration
	}{
		{"defaults", nil, DefaultStartDelay, DefaultReplyDelay},
		{"same delay", []Option{WithTypingDelay(0)}, 0, 0},
		{"separate", []Option{WithDelays(200*time.Millisecond, 300*time.Millisecond)}, 200 * time.Millisecond, 300 * time.Millisecond},
		{"negative keeps default", []Option{WithDelays(-1, 50*time.Millisecond)}, DefaultStartDelay, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(t, scenarioCatalog(), storage.NewMemoryBackend(), tt.opts...)

			turn, err := m.Start(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.start, turn.Delay)
			require.True(t, m.Flush(ctx))

			out, err := m.Submit(ctx, "Ada")
			require.NoError(t, err)
			assert.Equal(t, tt.reply, out.Turn.Delay)
		})
	}
}

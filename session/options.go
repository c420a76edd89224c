package session

import (
	"log/slog"
	"time"
)

// Host wording used when no override is configured.
const (
	DefaultGreeting = "Welcome to Innovabuzz Intake! I'm here to learn more about you as a potential podcast guest. " +
		"This will be a friendly conversation - just answer each question as we go. " +
		"Let's start with the basics - what's your name?"

	// DefaultCompletion is rendered with {name} replaced by the respondent's
	// name, or "there" when none was given.
	DefaultCompletion = "Perfect! Thank you {name} for taking the time to share your information. " +
		"I have everything I need to prepare for our Innovabuzz Podcast conversation. " +
		"You can export your responses using the button below, and I'll be in touch soon!"
)

// Default host typing delays.
const (
	DefaultStartDelay = 1000 * time.Millisecond
	DefaultReplyDelay = 1500 * time.Millisecond
)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for message timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTypingDelay sets the delay of every host turn. Zero makes turns
// immediately deliverable.
func WithTypingDelay(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.startDelay = d
			m.replyDelay = d
		}
	}
}

// WithDelays sets the greeting and reply delays separately. Negative
// values keep the default.
func WithDelays(start, reply time.Duration) Option {
	return func(m *Machine) {
		if start >= 0 {
			m.startDelay = start
		}
		if reply >= 0 {
			m.replyDelay = reply
		}
	}
}

// WithGreeting replaces the welcome message.
func WithGreeting(text string) Option {
	return func(m *Machine) {
		if text != "" {
			m.greeting = text
		}
	}
}

// WithCompletion replaces the completion template. "{name}" is substituted.
func WithCompletion(text string) Option {
	return func(m *Machine) {
		if text != "" {
			m.completion = text
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithIDSource overrides message id generation.
func WithIDSource(src IDSource) Option {
	return func(m *Machine) {
		if src != nil {
			m.newID = src
		}
	}
}

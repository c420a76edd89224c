package session

import "github.com/c360studio/intake/validation"

// Observer receives conversation events, typically to record metrics.
// Calls happen on the goroutine driving the machine.
type Observer interface {
	Started()
	Accepted(field string)
	Rejected(field string, reason validation.Reason)
	Progressed(index, total int)
	Completed()
	Reset()
}

type nopObserver struct{}

func (nopObserver) Started()                           {}
func (nopObserver) Accepted(string)                    {}
func (nopObserver) Rejected(string, validation.Reason) {}
func (nopObserver) Progressed(int, int)                {}
func (nopObserver) Completed()                         {}
func (nopObserver) Reset()                             {}

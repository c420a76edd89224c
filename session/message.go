package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a message.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Message is one entry of the chat transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IDSource mints message ids.
type IDSource func(t time.Time) string

// NewULIDSource returns an IDSource producing ULIDs that sort in creation
// order, even for ids minted within the same millisecond.
func NewULIDSource() IDSource {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return func(t time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(t), entropy).String()
	}
}

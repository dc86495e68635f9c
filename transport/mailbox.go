package transport

import (
	"context"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type box struct {
	mu       sync.Mutex
	pending  []Envelope
	lastPoll time.Time
}

// Mailbox serves devices that poll for work. A device counts as reachable for grace
// after its last poll; delivered envelopes wait until the next Fetch.
type Mailbox struct {
	boxes cmap.ConcurrentMap[string, *box]
	grace time.Duration
	now   func() time.Time
}

func NewMailbox(grace time.Duration) *Mailbox {
	return &Mailbox{
		boxes: cmap.New[*box](),
		grace: grace,
		now:   time.Now,
	}
}

func (m *Mailbox) Name() string { return "mailbox" }

func (m *Mailbox) get(deviceID string) *box {
	return m.boxes.Upsert(deviceID, nil, func(exist bool, old *box, _ *box) *box {
		if exist {
			return old
		}
		return &box{}
	})
}

func (m *Mailbox) Reachable(deviceID string) bool {
	b, ok := m.boxes.Get(deviceID)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.lastPoll.IsZero() && m.now().Sub(b.lastPoll) < m.grace
}

// Deliver stores env for the device. Re-delivering the same id replaces the stored copy.
func (m *Mailbox) Deliver(ctx context.Context, deviceID string, env Envelope) error {
	if !m.Reachable(deviceID) {
		return ErrUnreachable
	}
	b := m.get(deviceID)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pending {
		if b.pending[i].ID == env.ID {
			b.pending[i] = env
			return nil
		}
	}
	b.pending = append(b.pending, env)
	return nil
}

// Fetch records a poll and returns up to limit waiting envelopes in delivery order.
// limit <= 0 returns all of them.
func (m *Mailbox) Fetch(deviceID string, limit int) []Envelope {
	b := m.get(deviceID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPoll = m.now()

	n := len(b.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Envelope, n)
	copy(out, b.pending[:n])
	b.pending = append(b.pending[:0], b.pending[n:]...)
	return out
}

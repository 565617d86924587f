package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"unhidra/internal/domain"
)

// MemoryMailbox queues deliveries per recipient in arrival order.
type MemoryMailbox struct {
	mu     sync.Mutex
	queues map[domain.DeviceID][]domain.Delivery
	depth  int
	// MaxQueue bounds each recipient's queue. Zero means unbounded.
	MaxQueue int
}

// NewMemoryMailbox returns an empty mailbox.
func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{queues: make(map[domain.DeviceID][]domain.Delivery)}
}

// errQueueFull is returned by Send when the recipient's queue is at MaxQueue.
var errQueueFull = errors.New("recipient queue full")

func (m *MemoryMailbox) Send(ctx context.Context, d domain.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.To == "" || d.From == "" {
		return fmt.Errorf("delivery needs both sender and recipient")
	}
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().Unix()
	}
	d.Payload = append([]byte(nil), d.Payload...)

	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[d.To]
	if m.MaxQueue > 0 && len(q) >= m.MaxQueue {
		return errQueueFull
	}
	m.queues[d.To] = append(q, d)
	m.depth++
	return nil
}

// Fetch returns up to limit queued deliveries without removing them. A
// limit <= 0 returns the whole queue.
func (m *MemoryMailbox) Fetch(ctx context.Context, me domain.DeviceID, limit int) ([]domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[me]
	if limit <= 0 || limit > len(q) {
		limit = len(q)
	}
	out := make([]domain.Delivery, limit)
	copy(out, q[:limit])
	return out, nil
}

// Ack removes the first count deliveries from me's queue.
func (m *MemoryMailbox) Ack(ctx context.Context, me domain.DeviceID, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[me]
	if count < 0 || count > len(q) {
		return fmt.Errorf("ack %d of %d queued deliveries", count, len(q))
	}
	m.depth -= count
	if count == len(q) {
		delete(m.queues, me)
		return nil
	}
	m.queues[me] = append([]domain.Delivery(nil), q[count:]...)
	return nil
}

// Depth returns the number of deliveries queued across all recipients.
func (m *MemoryMailbox) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}

var _ domain.Mailbox = (*MemoryMailbox)(nil)

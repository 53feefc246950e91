package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/state"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one dismissible user-facing message.
type Notification struct {
	ID        string     `json:"id"`
	Severity  Severity   `json:"severity"`
	Kind      chain.Kind `json:"kind,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Router queues classified outcomes and errors for the presentation layer.
// Identical messages inside the dedup window are swallowed so a failing poll
// tick does not spam the queue every interval.
type Router struct {
	mu          sync.Mutex
	items       []Notification
	dedupWindow time.Duration
	maxQueue    int
	bus         *state.EventBus

	now func() time.Time
}

func NewRouter(bus *state.EventBus, dedupWindow time.Duration, maxQueue int) *Router {
	if maxQueue <= 0 {
		maxQueue = 50
	}
	return &Router{
		dedupWindow: dedupWindow,
		maxQueue:    maxQueue,
		bus:         bus,
		now:         time.Now,
	}
}

func (r *Router) Push(severity Severity, message string) *Notification {
	return r.push(severity, "", message)
}

// PushError classifies the error and queues its user-readable message. Revert
// reasons surface verbatim; everything else gets the taxonomy message, never
// a raw RPC error string.
func (r *Router) PushError(err error) *Notification {
	if err == nil {
		return nil
	}
	ce := chain.Classify(err)
	message := ce.Message
	if ce.Kind == chain.KindContractReverted && ce.Reason != "" {
		message = ce.Reason
	}
	severity := SeverityError
	if ce.Kind == chain.KindUserRejected {
		severity = SeverityInfo
	}
	return r.push(severity, ce.Kind, message)
}

func (r *Router) push(severity Severity, kind chain.Kind, message string) *Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := len(r.items) - 1; i >= 0; i-- {
		if now.Sub(r.items[i].CreatedAt) > r.dedupWindow {
			break
		}
		if r.items[i].Message == message {
			return nil
		}
	}

	n := Notification{
		ID:        uuid.New().String(),
		Severity:  severity,
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
	}
	r.items = append(r.items, n)
	if len(r.items) > r.maxQueue {
		r.items = r.items[len(r.items)-r.maxQueue:]
	}

	log.WithFields(log.Fields{"severity": severity, "kind": kind}).Debugf("Notification queued: %s", message)
	if r.bus != nil {
		r.bus.Publish(state.NotificationRaised, n)
	}
	return &n
}

// List returns queued notifications, newest first.
func (r *Router) List() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	for i, n := range r.items {
		out[len(r.items)-1-i] = n
	}
	return out
}

func (r *Router) Dismiss(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.items {
		if n.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Router) Clear() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

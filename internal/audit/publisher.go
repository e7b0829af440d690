package audit

import (
	"log/slog"
	"time"
)

// Publisher feeds audit events into a buffered channel for the Worker to
// persist. Emit never blocks the verification path; when the buffer is full
// the event is dropped and counted in the log.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 128
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
		now:    time.Now,
	}
}

func (p *Publisher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"verification_id", event.VerificationID.String())
	}
}

// Inbox exposes the channel for the Worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }

package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TransitionEvent describes a committed order status change. The workflow
// engine publishes one for every transition; channel selection stays here.
type TransitionEvent struct {
	OrderID        string    `json:"order_id"`
	PatientID      string    `json:"patient_id"`
	ProviderID     string    `json:"provider_id,omitempty"`
	Medication     string    `json:"medication,omitempty"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`

	// Optional contact details. When absent, no patient message is sent and
	// the event is still recorded in the structured log.
	PatientName  string `json:"patient_name,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`
	Pharmacy     string `json:"pharmacy,omitempty"`
	Note         string `json:"note,omitempty"`
}

// statusTemplates maps workflow statuses to notification templates. Statuses
// without an entry are logged but produce no outbound message.
var statusTemplates = map[string]string{
	"prescription_sent": "prescription-sent",
	"pharmacy_ready":    "pharmacy-ready",
	"order_shipped":     "order-shipped",
	"order_delivered":   "order-delivered",
	"cancelled":         "order-cancelled",
}

// Gateway consumes transition events asynchronously and fans them out to the
// configured channels. Delivery is best effort: failures are logged and
// retried a bounded number of times, and never surface to the caller.
type Gateway struct {
	manager  *Manager
	contacts ContactSource
	logger   zerolog.Logger
	events   chan TransitionEvent
	retries  int
	done     chan struct{}
}

// NewGateway constructs a Gateway with a buffered event queue. contacts may
// be nil; events then deliver only when they already carry an address.
func NewGateway(manager *Manager, contacts ContactSource, logger zerolog.Logger) *Gateway {
	return &Gateway{
		manager:  manager,
		contacts: contacts,
		logger:   logger,
		events:   make(chan TransitionEvent, 256),
		retries:  2,
		done:     make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It drains the queue and exits when
// the context is cancelled.
func (g *Gateway) Start(ctx context.Context) {
	go func() {
		defer close(g.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-g.events:
				g.deliver(ctx, evt)
			}
		}
	}()
}

// Wait blocks until the consumer goroutine has stopped.
func (g *Gateway) Wait() {
	<-g.done
}

// Publish enqueues a transition event without blocking the workflow engine.
// If the queue is full the event is dropped and the drop is logged.
func (g *Gateway) Publish(evt TransitionEvent) {
	select {
	case g.events <- evt:
	default:
		g.logger.Warn().
			Str("order_id", evt.OrderID).
			Str("new_status", evt.NewStatus).
			Msg("notification queue full, event dropped")
	}
}

func (g *Gateway) deliver(ctx context.Context, evt TransitionEvent) {
	g.logger.Info().
		Str("order_id", evt.OrderID).
		Str("previous_status", evt.PreviousStatus).
		Str("new_status", evt.NewStatus).
		Msg("order transition")

	tplID, ok := statusTemplates[evt.NewStatus]
	if !ok {
		return
	}

	if evt.PatientEmail == "" && g.contacts != nil {
		c, err := g.contacts.Contact(ctx, evt.PatientID)
		if err != nil {
			g.logger.Debug().Err(err).
				Str("order_id", evt.OrderID).
				Msg("no contact on file for patient")
		} else {
			evt.PatientEmail = c.Email
			if evt.PatientName == "" {
				evt.PatientName = c.Name
			}
		}
	}
	if evt.PatientEmail == "" {
		return
	}

	data := map[string]string{
		"patient_name": evt.PatientName,
		"order_id":     evt.OrderID,
		"medication":   evt.Medication,
		"pharmacy":     evt.Pharmacy,
		"note":         evt.Note,
	}

	var err error
	for attempt := 0; attempt <= g.retries; attempt++ {
		_, err = g.manager.SendFromTemplate(ctx, tplID, data, evt.PatientEmail)
		if err == nil {
			return
		}
	}

	g.logger.Error().Err(err).
		Str("order_id", evt.OrderID).
		Str("template", tplID).
		Msg("notification delivery failed")
}

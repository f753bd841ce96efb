package notification

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestGateway() (*Gateway, *MockEmailSender) {
	email := &MockEmailSender{}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())
	logger := zerolog.New(os.Stderr)
	return NewGateway(mgr, nil, logger), email
}

func waitForCalls(t *testing.T, email *MockEmailSender, want int) []EmailCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := email.Calls(); len(calls) >= want {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d email calls, have %d", want, len(email.Calls()))
	return nil
}

func TestGateway_DeliversOnMappedStatus(t *testing.T) {
	g, email := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	g.Publish(TransitionEvent{
		OrderID:        "ord-1",
		PatientID:      "pat-1",
		NewStatus:      "prescription_sent",
		PreviousStatus: "prescription_created",
		PatientName:    "Jordan",
		PatientEmail:   "jordan@example.com",
		Medication:     "Sildenafil 50mg",
		Pharmacy:       "Main St Pharmacy",
		Timestamp:      time.Now(),
	})

	calls := waitForCalls(t, email, 1)
	if calls[0].To != "jordan@example.com" {
		t.Errorf("unexpected recipient %s", calls[0].To)
	}
	if !strings.Contains(calls[0].Body, "Main St Pharmacy") {
		t.Errorf("expected pharmacy in body, got %q", calls[0].Body)
	}
}

func TestGateway_SkipsUnmappedStatus(t *testing.T) {
	g, email := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	g.Publish(TransitionEvent{
		OrderID:      "ord-1",
		NewStatus:    "provider_review",
		PatientEmail: "jordan@example.com",
	})

	time.Sleep(50 * time.Millisecond)
	if len(email.Calls()) != 0 {
		t.Errorf("expected no email for unmapped status, got %d", len(email.Calls()))
	}
}

type staticContactSource struct {
	contacts map[string]*Contact
}

func (s *staticContactSource) Contact(ctx context.Context, patientID string) (*Contact, error) {
	c, ok := s.contacts[patientID]
	if !ok {
		return nil, errors.New("no contact")
	}
	return c, nil
}

func TestGateway_ResolvesContactForBareEvent(t *testing.T) {
	email := &MockEmailSender{}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())
	contacts := &staticContactSource{contacts: map[string]*Contact{
		"pat-1": {Name: "Jordan", Email: "jordan@example.com"},
	}}
	g := NewGateway(mgr, contacts, zerolog.New(os.Stderr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	// The engine publishes events without contact details; the gateway must
	// look the address up itself.
	g.Publish(TransitionEvent{
		OrderID:    "ord-1",
		PatientID:  "pat-1",
		NewStatus:  "prescription_sent",
		Medication: "Finasteride 1mg",
		Timestamp:  time.Now(),
	})

	calls := waitForCalls(t, email, 1)
	if calls[0].To != "jordan@example.com" {
		t.Errorf("unexpected recipient %s", calls[0].To)
	}
}

func TestGateway_SkipsWithoutContact(t *testing.T) {
	g, email := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	g.Publish(TransitionEvent{
		OrderID:   "ord-1",
		NewStatus: "order_shipped",
	})

	time.Sleep(50 * time.Millisecond)
	if len(email.Calls()) != 0 {
		t.Errorf("expected no email without contact, got %d", len(email.Calls()))
	}
}

func TestGateway_RetriesFailedDelivery(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())
	g := NewGateway(mgr, nil, zerolog.New(os.Stderr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	g.Publish(TransitionEvent{
		OrderID:      "ord-1",
		NewStatus:    "order_shipped",
		PatientEmail: "jordan@example.com",
	})

	// Initial attempt plus two retries.
	calls := waitForCalls(t, email, 3)
	if len(calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(calls))
	}
}

func TestGateway_StopsOnContextCancel(t *testing.T) {
	g, _ := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop after context cancel")
	}
}

package library

import (
	"context"
	"log"
	"strconv"

	"github.com/ariefcatur/go-school-library/internal/fines"
	kafkax "github.com/ariefcatur/go-school-library/internal/kafka"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is satisfied by kafkax.Router.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

type traceKey struct{}

// WithTraceID attaches the request id carried into event envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// emit publishes after commit; the store stays the source of truth, so a
// failed publish is logged and not returned.
func (s *Service) emit(ctx context.Context, topic, eventType, loanID string, payload any) {
	if s.Events == nil {
		return
	}
	ev := loans.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.Producer,
		TraceID:       traceID(ctx),
		CorrelationID: loanID,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := s.Events.Publish(topic, loans.PartitionKey(loanID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
	if err != nil {
		log.Printf("publish %s for loan %s: %v", eventType, loanID, err)
	}
}

func (s *Service) emitFine(ctx context.Context, topic, eventType string, f fines.Fine) {
	s.emit(ctx, topic, eventType, f.LoanID, loans.FinePayload{
		FineID:        f.ID,
		LoanID:        f.LoanID,
		BorrowerID:    f.BorrowerID,
		Status:        string(f.Status),
		DaysLate:      f.DaysLate,
		TotalFine:     f.TotalFine,
		PaymentMethod: f.PaymentMethod,
		ConfirmedBy:   f.ConfirmedBy,
	})
}

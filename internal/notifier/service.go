package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/ariefcatur/go-school-library/internal/fines"
	kafkax "github.com/ariefcatur/go-school-library/internal/kafka"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/ariefcatur/go-school-library/internal/redisx"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Topics the notifier consumes.
var Topics = []string{loans.TopicLoanReturned, loans.TopicFinePaymentRequested, loans.TopicFinePaid}

// Fines is the slice of library.Service the notifier needs.
type Fines interface {
	GetOrMaterializeFine(ctx context.Context, actor library.Principal, loanID string) (fines.Fine, error)
	GetFine(ctx context.Context, actor library.Principal, fineID string) (fines.Fine, error)
}

type NoticeKind string

const (
	NoticeFineDue          NoticeKind = "FINE_DUE"
	NoticePaymentPending   NoticeKind = "PAYMENT_PENDING"
	NoticePaymentConfirmed NoticeKind = "PAYMENT_CONFIRMED"
)

// Notice is one message for a borrower or, for pending payments, for the admins.
type Notice struct {
	Kind     NoticeKind
	To       string
	LoanID   string
	FineID   string
	Amount   decimal.Decimal
	DaysLate int
	TraceID  string
	Message  string
}

type Sink interface {
	Send(ctx context.Context, n Notice) error
}

// LogSink writes notices to the process log.
type LogSink struct{}

func (LogSink) Send(_ context.Context, n Notice) error {
	log.Printf("notify %s to=%s loan=%s fine=%s amount=%s trace=%s: %s",
		n.Kind, n.To, n.LoanID, n.FineID, n.Amount, n.TraceID, n.Message)
	return nil
}

type Service struct {
	Fines       Fines
	Cache       *redisx.Cache
	Sink        Sink
	ServiceName string
}

// AdminInbox is the recipient of notices meant for library staff.
const AdminInbox = "admins"

// Handle is installed as the consumer handler. Each event is processed once;
// a failed event drops its dedup mark so the consumer's retry processes it again.
// Undecodable values are permanent failures.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.Decode[loans.Envelope](m)
	if err != nil {
		return kafkax.Permanent(err)
	}
	first, err := s.Cache.FirstSeen(ctx, s.ServiceName, env.EventID)
	if err != nil {
		return errors.Wrap(err, "dedup")
	}
	if !first {
		return nil
	}
	if err := s.dispatch(ctx, env); err != nil {
		if ferr := s.Cache.Forget(ctx, s.ServiceName, env.EventID); ferr != nil {
			log.Printf("forget %s: %v", env.EventID, ferr)
		}
		return errors.Wrapf(err, "%s %s", env.EventType, env.EventID)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, env loans.Envelope) error {
	switch env.EventType {
	case loans.EventLoanReturned:
		p, err := kafkax.UnwrapPayload[loans.LoanReturnedPayload](env.Payload)
		if err != nil {
			return kafkax.Permanent(err)
		}
		return s.loanReturned(ctx, env, p)
	case loans.EventFinePaymentRequested, loans.EventFinePaid:
		p, err := kafkax.UnwrapPayload[loans.FinePayload](env.Payload)
		if err != nil {
			return kafkax.Permanent(err)
		}
		return s.fineChanged(ctx, env, p)
	default:
		return nil // ignore
	}
}

// loanReturned makes sure a late return has its fine persisted and tells the borrower.
func (s *Service) loanReturned(ctx context.Context, env loans.Envelope, p loans.LoanReturnedPayload) error {
	if p.DaysLate == 0 {
		return nil
	}
	f, err := s.Fines.GetOrMaterializeFine(ctx, library.System, p.LoanID)
	if err != nil {
		return err
	}
	s.refresh(ctx, f)
	return s.Sink.Send(ctx, Notice{
		Kind:     NoticeFineDue,
		To:       f.BorrowerID,
		LoanID:   f.LoanID,
		FineID:   f.ID,
		Amount:   f.TotalFine,
		DaysLate: f.DaysLate,
		TraceID:  env.TraceID,
		Message:  fmt.Sprintf("returned %d day(s) late, fine %s", f.DaysLate, f.TotalFine.StringFixed(0)),
	})
}

func (s *Service) fineChanged(ctx context.Context, env loans.Envelope, p loans.FinePayload) error {
	f, err := s.Fines.GetFine(ctx, library.System, p.FineID)
	if err != nil {
		return err
	}
	s.refresh(ctx, f)

	n := Notice{LoanID: f.LoanID, FineID: f.ID, Amount: f.TotalFine, DaysLate: f.DaysLate, TraceID: env.TraceID}
	switch env.EventType {
	case loans.EventFinePaymentRequested:
		n.Kind, n.To = NoticePaymentPending, AdminInbox
		n.Message = fmt.Sprintf("%s paid %s by %s, waiting for confirmation", f.BorrowerID, f.TotalFine.StringFixed(0), f.PaymentMethod)
	default:
		n.Kind, n.To = NoticePaymentConfirmed, f.BorrowerID
		n.Message = fmt.Sprintf("payment of %s confirmed", f.TotalFine.StringFixed(0))
	}
	return s.Sink.Send(ctx, n)
}

func (s *Service) refresh(ctx context.Context, f fines.Fine) {
	if err := s.Cache.PutFineStatus(ctx, f); err != nil {
		log.Printf("cache fine %s: %v", f.ID, err)
	}
}

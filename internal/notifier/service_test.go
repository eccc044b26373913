package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-school-library/internal/fines"
	kafkax "github.com/ariefcatur/go-school-library/internal/kafka"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/ariefcatur/go-school-library/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFines struct{ mock.Mock }

func (m *mockFines) GetOrMaterializeFine(ctx context.Context, actor library.Principal, loanID string) (fines.Fine, error) {
	args := m.Called(actor, loanID)
	return args.Get(0).(fines.Fine), args.Error(1)
}

func (m *mockFines) GetFine(ctx context.Context, actor library.Principal, fineID string) (fines.Fine, error) {
	args := m.Called(actor, fineID)
	return args.Get(0).(fines.Fine), args.Error(1)
}

type captureSink struct{ got []Notice }

func (c *captureSink) Send(_ context.Context, n Notice) error {
	c.got = append(c.got, n)
	return nil
}

func newService(t *testing.T) (*Service, *mockFines, *captureSink, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	fm := &mockFines{}
	sink := &captureSink{}
	return &Service{Fines: fm, Cache: &redisx.Cache{RDB: rdb}, Sink: sink, ServiceName: "notifier"}, fm, sink, mr
}

func message(t *testing.T, eventID, eventType string, payload any) kafkago.Message {
	t.Helper()
	env := loans.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "library-api",
		TraceID:      "req-7",
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Topic: "t", Value: kafkax.MustMarshal(env)}
}

func lateFine(status fines.Status) fines.Fine {
	return fines.Fine{
		ID:            "fine-1",
		LoanID:        "loan-1",
		BorrowerID:    "siswa-budi",
		DaysLate:      6,
		TotalFine:     decimal.NewFromInt(6000),
		Status:        status,
		PaymentMethod: "TRANSFER",
	}
}

func TestLateReturnMaterializesAndNotifies(t *testing.T) {
	svc, fm, sink, mr := newService(t)
	fm.On("GetOrMaterializeFine", library.System, "loan-1").Return(lateFine(fines.StatusUnpaid), nil).Once()

	m := message(t, "ev-1", loans.EventLoanReturned, loans.LoanReturnedPayload{LoanID: "loan-1", DaysLate: 6})
	require.NoError(t, svc.Handle(context.Background(), m))

	require.Len(t, sink.got, 1)
	n := sink.got[0]
	assert.Equal(t, NoticeFineDue, n.Kind)
	assert.Equal(t, "siswa-budi", n.To)
	assert.Equal(t, "req-7", n.TraceID)
	assert.Contains(t, n.Message, "6000")
	assert.True(t, mr.Exists("fine_status:fine-1"))

	// redelivery of the same event is a no-op
	require.NoError(t, svc.Handle(context.Background(), m))
	assert.Len(t, sink.got, 1)
	fm.AssertExpectations(t)
}

func TestOnTimeReturnIsQuiet(t *testing.T) {
	svc, fm, sink, _ := newService(t)
	m := message(t, "ev-2", loans.EventLoanReturned, loans.LoanReturnedPayload{LoanID: "loan-2"})

	require.NoError(t, svc.Handle(context.Background(), m))
	assert.Empty(t, sink.got)
	fm.AssertNotCalled(t, "GetOrMaterializeFine", mock.Anything, mock.Anything)
}

func TestPaymentEventsNotify(t *testing.T) {
	cases := []struct {
		event  string
		status fines.Status
		kind   NoticeKind
		to     string
	}{
		{loans.EventFinePaymentRequested, fines.StatusPending, NoticePaymentPending, AdminInbox},
		{loans.EventFinePaid, fines.StatusPaid, NoticePaymentConfirmed, "siswa-budi"},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			svc, fm, sink, _ := newService(t)
			fm.On("GetFine", library.System, "fine-1").Return(lateFine(tc.status), nil).Once()

			m := message(t, "ev-"+tc.event, tc.event, loans.FinePayload{FineID: "fine-1", LoanID: "loan-1"})
			require.NoError(t, svc.Handle(context.Background(), m))

			require.Len(t, sink.got, 1)
			assert.Equal(t, tc.kind, sink.got[0].Kind)
			assert.Equal(t, tc.to, sink.got[0].To)

			st, ok, err := svc.Cache.FineStatus(context.Background(), "fine-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.status, st.Status)
		})
	}
}

func TestFailedEventCanBeRetried(t *testing.T) {
	svc, fm, sink, _ := newService(t)
	fm.On("GetFine", library.System, "fine-9").Return(fines.Fine{}, liberr.NotFound("library.GetFine", "fine-9")).Once()
	fm.On("GetFine", library.System, "fine-9").Return(lateFine(fines.StatusPaid), nil).Once()

	m := message(t, "ev-9", loans.EventFinePaid, loans.FinePayload{FineID: "fine-9"})
	err := svc.Handle(context.Background(), m)
	require.Error(t, err)
	assert.True(t, liberr.IsKind(err, liberr.KindNotFound))
	assert.False(t, kafkax.IsPermanent(err), "store failures are retried by the consumer")

	require.NoError(t, svc.Handle(context.Background(), m))
	assert.Len(t, sink.got, 1)
}

func TestUnknownEventsAndBadValues(t *testing.T) {
	svc, _, sink, _ := newService(t)

	m := message(t, "ev-3", loans.EventLoanBorrowed, loans.LoanBorrowedPayload{LoanID: "loan-3"})
	require.NoError(t, svc.Handle(context.Background(), m))
	assert.Empty(t, sink.got)

	err := svc.Handle(context.Background(), kafkago.Message{Topic: "t", Value: []byte("{")})
	assert.True(t, kafkax.IsPermanent(err))

	bad := message(t, "ev-4", loans.EventFinePaid, "not a payload")
	err = svc.Handle(context.Background(), bad)
	assert.True(t, kafkax.IsPermanent(err))
}

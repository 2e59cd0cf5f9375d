package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"sikdae/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{64, 30 * time.Second}, // no overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", amqp091.ErrClosed, true},
		{"wrapped EOF", fmt.Errorf("read: %w", io.EOF), true},
		{"dns", errors.New("lookup rabbit: no such host"), true},
		{"auth", errors.New("Exception (403) Reason: \"username or password not allowed\""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acks++; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	valid := []byte(`{"request_id":"r-1","sheet_name":"5월","timestamp":"2024-06-01T00:00:00Z"}`)
	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		want        outcome
		wantAcks    int
		wantNacks   int
		wantRequeue bool
	}{
		{name: "success", body: valid, want: outcomeAcked, wantAcks: 1},
		{name: "malformed json", body: []byte("{"), want: outcomeRejected, wantNacks: 1},
		{name: "missing request id", body: []byte(`{"sheet_name":"x"}`), want: outcomeRejected, wantNacks: 1},
		{name: "transient failure", body: valid, handlerErr: errors.New("sheets timeout"), want: outcomeRequeued, wantNacks: 1, wantRequeue: true},
		{name: "permanent failure", body: valid, handlerErr: fmt.Errorf("bad sheet: %w", ErrPermanent), want: outcomeRejected, wantNacks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			var got *AnalysisRequestMessage
			out := handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: tt.body},
				func(_ context.Context, msg *AnalysisRequestMessage) error {
					got = msg
					return tt.handlerErr
				})
			if out != tt.want {
				t.Fatalf("outcome = %s, want %s", out, tt.want)
			}
			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks || ack.requeue != tt.wantRequeue {
				t.Fatalf("acks=%d nacks=%d requeue=%v", ack.acks, ack.nacks, ack.requeue)
			}
			if tt.want == outcomeAcked && (got == nil || got.RequestID != "r-1" || got.SheetName != "5월") {
				t.Fatalf("unexpected decoded message: %+v", got)
			}
		})
	}
}

func TestConsumeStopsOnCancelAndClose(t *testing.T) {
	msgs := make(chan amqp091.Delivery, 1)
	ack := &fakeAcknowledger{}
	msgs <- amqp091.Delivery{Acknowledger: ack, Body: []byte(`{"request_id":"r-2"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- consume(ctx, msgs, func(context.Context, *AnalysisRequestMessage) error {
			close(handled)
			return nil
		})
	}()
	<-handled
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(msgs)
	if err := consume(context.Background(), msgs, nil); err == nil {
		t.Fatal("expected error on closed channel")
	}
}

func TestAnalysisRequestMessage_JSON(t *testing.T) {
	msg := NewAnalysisRequestMessage("r-3", "sheet-id", "법인카드", "2024-05")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	got, err := AnalysisRequestMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if got.RequestID != "r-3" || got.SpreadsheetID != "sheet-id" || got.SheetName != "법인카드" || got.Label != "2024-05" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}
}

func TestAnalysisRequestMessage_Invalid(t *testing.T) {
	for _, body := range []string{"not json", `{"request_id":"  "}`} {
		if _, err := AnalysisRequestMessageFromJSON([]byte(body)); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("FromJSON(%q) error = %v, want ErrInvalidMessage", body, err)
		}
	}
}

func TestSummarizeClass(t *testing.T) {
	r := core.ClassResult{
		Class:  core.Lunch,
		Rows:   7,
		Excess: []core.ExcessRecord{{User: "kim", Excess: 3000}, {User: "lee", Excess: 500}},
	}
	s := SummarizeClass(r)
	if s.Rows != 7 || s.FlaggedUsers != 2 || s.TotalExcess != 3500 || len(s.Excess) != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	msg := &AnalysisCompletedMessage{AnalysisID: "a-1", Source: "sheet", Status: StatusCompleted, Lunch: s}
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	back, err := AnalysisCompletedMessageFromJSON(data)
	if err != nil || back.Lunch.Excess[0].User != "kim" || back.Status != StatusCompleted {
		t.Fatalf("unexpected decode: %+v err=%v", back, err)
	}
}

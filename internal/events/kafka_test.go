package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestProducer_PublishKeysByMonitor(t *testing.T) {
	w := &captureWriter{}
	p := &Producer{writer: w, topic: "pingbase.events", log: zap.NewNop()}

	code := 503
	msg := "Expected status 200, got 503"
	ev := Event{
		Kind:      CheckRecorded,
		MonitorID: "m-42",
		Check: &domain.CheckResult{
			MonitorID:  "m-42",
			Status:     domain.StatusDown,
			HTTPStatus: &code,
			Error:      &msg,
		},
		At: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "m-42" {
		t.Fatalf("key: %q", m.Key)
	}
	if len(m.Headers) != 1 || string(m.Headers[0].Value) != "check.recorded" {
		t.Fatalf("headers: %+v", m.Headers)
	}
	var got Event
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != CheckRecorded || got.Check == nil || *got.Check.HTTPStatus != 503 {
		t.Fatalf("round trip: %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestProducer_WriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("no brokers")}
	p := &Producer{writer: w, topic: "t", log: zap.NewNop()}
	err := p.Publish(context.Background(), Event{Kind: IncidentOpened, MonitorID: "m"})
	if err == nil || !errors.Is(err, w.err) {
		t.Fatalf("want wrapped error, got %v", err)
	}
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"entity-store/core"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type recorder struct {
	events []core.Event
	err    error
}

func (r *recorder) Notify(ctx context.Context, event core.Event) error {
	r.events = append(r.events, event)
	return r.err
}

func sampleEvent() core.Event {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return core.Event{
		Type:       core.RecordUpdated,
		Collection: "ben10",
		ID:         "01HXAMPLE0000000000000000",
		Record: &core.Record{
			Fields:     map[string]string{"characterName": "Ben"},
			Attachment: &core.Attachment{Data: []byte("png"), ContentType: "image/png"},
			UpdatedAt:  updated,
		},
	}
}

func TestFanout(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("broker down")}
	fanout := Fanout{failing, ok}

	err := fanout.Notify(context.Background(), sampleEvent())
	if err == nil || err.Error() != "broker down" {
		t.Errorf("err = %v", err)
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Errorf("delivery stopped at first failure: %d / %d", len(failing.events), len(ok.events))
	}
	if err := (Fanout{}).Notify(context.Background(), sampleEvent()); err != nil {
		t.Errorf("empty fanout: %v", err)
	}
	if err := Discard.Notify(context.Background(), sampleEvent()); err != nil {
		t.Errorf("Discard: %v", err)
	}
}

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}
	event := sampleEvent()

	if err := publisher.Notify(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("got %d messages", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != event.ID {
		t.Errorf("key = %q", msg.Key)
	}
	var decoded message
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "record-updated" || decoded.Collection != "ben10" || decoded.ID != event.ID {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.At.Equal(event.Record.UpdatedAt) {
		t.Errorf("at = %v", decoded.At)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "ben10" {
		t.Errorf("headers = %v", msg.Headers)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Errorf("Close: %v, closed=%v", err, writer.closed)
	}
}

func TestPayloadOmitsAttachment(t *testing.T) {
	p := payload(sampleEvent())
	if len(p) != 3 || p["id"] != sampleEvent().ID || p["type"] != "record-updated" {
		t.Errorf("payload = %v", p)
	}
}

func TestKafkaPublisherWritesInBackground(t *testing.T) {
	publisher := NewKafkaPublisher([]string{"127.0.0.1:1"}, "record-events")
	writer, ok := publisher.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer = %T", publisher.writer)
	}
	if !writer.Async || writer.Completion == nil {
		t.Errorf("writer blocks the caller: async=%v", writer.Async)
	}
	if writer.WriteTimeout <= 0 {
		t.Errorf("write timeout = %v", writer.WriteTimeout)
	}
	if err := writer.Close(); err != nil {
		t.Error(err)
	}
}

func TestLogDelivery(t *testing.T) {
	hook := test.NewGlobal()
	defer logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))

	msgs := []kafka.Message{{Topic: "record-events", Key: []byte("01HXAMPLE")}}
	logDelivery(msgs, nil)
	if len(hook.Entries) != 0 {
		t.Fatalf("logged %d entries for a successful delivery", len(hook.Entries))
	}
	logDelivery(msgs, errors.New("broker down"))
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["record_id"] != "01HXAMPLE" {
		t.Errorf("entry = %+v", entry)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/rs/zerolog"
)

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{exchange, routingKey, body})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestPublishImportFinished(t *testing.T) {
	pub := &fakePublisher{}
	events := NewEventPublisher(pub, "grading_exchange", "import", zerolog.Nop())

	event := models.ImportJobFinishedEvent{
		JobID:        "job-1",
		ExamID:       "exam-1",
		Status:       "completed",
		TotalFiles:   3,
		SuccessCount: 1,
		CompletedAt:  time.Now(),
	}
	if err := events.PublishImportFinished(context.Background(), event); err != nil {
		t.Fatalf("PublishImportFinished: %v", err)
	}

	if len(pub.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.exchange != "grading_exchange" || msg.routingKey != "import.completed" {
		t.Errorf("exchange/key = %s/%s", msg.exchange, msg.routingKey)
	}

	var decoded models.ImportJobFinishedEvent
	if err := json.Unmarshal(msg.body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.JobID != "job-1" || decoded.SuccessCount != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishImportFinishedError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	events := NewEventPublisher(pub, "ex", "import", zerolog.Nop())

	err := events.PublishImportFinished(context.Background(), models.ImportJobFinishedEvent{Status: "failed"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, pub.err) {
		t.Errorf("error %v does not wrap publisher error", err)
	}
}

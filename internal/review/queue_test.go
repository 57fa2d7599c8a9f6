package review

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/infra/storage/memory"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	store := memory.NewMemoryStorage()
	b := bus.New(memory.NewMessageRepo(store), bus.WithPollInterval(10*time.Millisecond))
	return NewQueue(memory.NewQuestionRepo(store), b, opts...)
}

func floatPtr(v float64) *float64 { return &v }

func validRequest(correlationID string, priority int) domain.SubmitRequest {
	return domain.SubmitRequest{
		CorrelationID: correlationID,
		Text:          "Should this recurring pattern become a scheduled task?",
		Type:          domain.QuestionHighValue,
		Priority:      priority,
	}
}

func TestSubmitQuestion_TextLengthBoundaries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"too short", 6, true},
		{"lower bound", 10, false},
		{"upper bound", 500, false},
		{"too long", 501, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("c-"+tt.name, 5)
			req.Text = strings.Repeat("x", tt.length)
			_, err := q.SubmitQuestion(ctx, req)

			if tt.wantErr {
				var vErr *domain.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("length %d: got %v, want ValidationError", tt.length, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("length %d: unexpected error %v", tt.length, err)
			}
		})
	}
}

func TestSubmitQuestion_ValidationHappensBeforePersistence(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	req := validRequest("c1", 5)
	req.Text = "too short"
	if _, err := q.SubmitQuestion(ctx, req); err == nil {
		t.Fatal("expected validation error")
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalQuestions != 0 {
		t.Errorf("rejected question was persisted: total = %d", stats.TotalQuestions)
	}
}

func TestSubmitQuestion_PublishesReviewNotice(t *testing.T) {
	store := memory.NewMemoryStorage()
	b := bus.New(memory.NewMessageRepo(store), bus.WithPollInterval(10*time.Millisecond))
	q := NewQueue(memory.NewQuestionRepo(store), b)
	ctx := context.Background()

	if _, err := q.SubmitQuestion(ctx, validRequest("c1", 5)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	count, err := b.PendingCount(ctx, domain.QueueHumanReview)
	if err != nil {
		t.Fatalf("pending count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("human_review_queue pending = %d, want 1", count)
	}
}

func TestGetPendingQuestions_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Priority 2 submitted earlier, 9 later: 9 must come back first.
	if _, err := q.SubmitQuestion(ctx, validRequest("low", 2)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := q.SubmitQuestion(ctx, validRequest("high", 9)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	pending, err := q.GetPendingQuestions(ctx, 10)
	if err != nil {
		t.Fatalf("get pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].CorrelationID != "high" || pending[1].CorrelationID != "low" {
		t.Errorf("wrong order: %s, %s", pending[0].CorrelationID, pending[1].CorrelationID)
	}
}

func TestGetPendingQuestions_EmptyQueueNotAnError(t *testing.T) {
	q := newTestQueue(t)

	pending, err := q.GetPendingQuestions(context.Background(), 10)
	if err != nil {
		t.Fatalf("get pending on empty queue = %v, want nil", err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0", len(pending))
	}
}

func TestDuplicateCorrelation_YieldsDistinctQuestions(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.SubmitQuestion(ctx, validRequest("same", 5))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	id2, err := q.SubmitQuestion(ctx, validRequest("same", 5))
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("resubmission reused question id %d", id1)
	}

	// Both independently retrievable.
	for _, id := range []int64{id1, id2} {
		if _, err := q.GetQuestion(ctx, id); err != nil {
			t.Errorf("question %d not retrievable: %v", id, err)
		}
	}

	// Correlation lookup returns the most recent.
	latest, err := q.GetQuestionByCorrelation(ctx, "same")
	if err != nil {
		t.Fatalf("correlation lookup failed: %v", err)
	}
	if latest.ID != id2 {
		t.Errorf("correlation lookup returned %d, want most recent %d", latest.ID, id2)
	}
}

func TestGetQuestionByCorrelation_NotFound(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.GetQuestionByCorrelation(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("got %v, want ErrQuestionNotFound", err)
	}
}

func TestExpiry_SkipsExpiredAndPreservesAnswered(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	q := newTestQueue(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	shortLived := validRequest("short", 5)
	shortLived.ExpiresIn = time.Hour
	expiringID, err := q.SubmitQuestion(ctx, shortLived)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	answered := validRequest("answered", 5)
	answered.ExpiresIn = time.Hour
	answeredID, err := q.SubmitQuestion(ctx, answered)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	err = q.MarkAnswered(ctx, answeredID, &domain.Response{
		CorrelationID: "answered",
		Type:          domain.ResponseYes,
		RespondedAt:   now,
	})
	if err != nil {
		t.Fatalf("mark answered failed: %v", err)
	}

	// Advance past both expiry times.
	later := now.Add(2 * time.Hour)
	clock = &later

	pending, err := q.GetPendingQuestions(ctx, 10)
	if err != nil {
		t.Fatalf("get pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expired question still pending: %d results", len(pending))
	}

	count, err := q.ExpireOldQuestions(ctx)
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expired %d questions, want 1 (answered must be skipped)", count)
	}

	expired, _ := q.GetQuestion(ctx, expiringID)
	if expired.Status != domain.QuestionExpired {
		t.Errorf("unanswered question status = %s, want expired", expired.Status)
	}

	// Answered question keeps its status even though expires_at has passed.
	kept, _ := q.GetQuestion(ctx, answeredID)
	if kept.Status != domain.QuestionAnswered {
		t.Errorf("answered question status = %s, want answered", kept.Status)
	}
}

func TestStats_AcceptanceRate(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	answers := []struct {
		correlation string
		response    domain.ResponseType
	}{
		{"y1", domain.ResponseYes},
		{"y2", domain.ResponseYes},
		{"n1", domain.ResponseNo},
		{"l1", domain.ResponseLater}, // excluded from the denominator
	}
	for _, a := range answers {
		id, err := q.SubmitQuestion(ctx, validRequest(a.correlation, 5))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		err = q.MarkAnswered(ctx, id, &domain.Response{
			CorrelationID:       a.correlation,
			Type:                a.response,
			RespondedAt:         time.Now().UTC(),
			ResponseTimeSeconds: floatPtr(10),
		})
		if err != nil {
			t.Fatalf("mark answered failed: %v", err)
		}
	}
	// One left pending: also excluded.
	if _, err := q.SubmitQuestion(ctx, validRequest("pending", 5)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalQuestions != 5 {
		t.Errorf("total = %d, want 5", stats.TotalQuestions)
	}
	if want := 2.0 / 3.0; math.Abs(stats.AcceptanceRate-want) > 1e-9 {
		t.Errorf("acceptance rate = %v, want %v", stats.AcceptanceRate, want)
	}
	if stats.ByStatus[string(domain.QuestionAnswered)] != 4 {
		t.Errorf("answered count = %d, want 4", stats.ByStatus[string(domain.QuestionAnswered)])
	}
	if math.Abs(stats.AvgResponseSeconds-10) > 1e-9 {
		t.Errorf("avg response time = %v, want 10", stats.AvgResponseSeconds)
	}
}

func TestMarkAnswered_SecondAnswerRejected(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.SubmitQuestion(ctx, validRequest("c1", 5))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	err = q.MarkAnswered(ctx, id, &domain.Response{
		CorrelationID: "c1",
		Type:          domain.ResponseNo,
	})
	if err != nil {
		t.Fatalf("first answer failed: %v", err)
	}

	err = q.MarkAnswered(ctx, id, &domain.Response{
		CorrelationID: "c1",
		Type:          domain.ResponseYes,
	})
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("second answer: got %v, want ErrAlreadyAnswered", err)
	}

	question, err := q.GetQuestion(ctx, id)
	if err != nil {
		t.Fatalf("get question failed: %v", err)
	}
	if question.ResponseType != domain.ResponseNo {
		t.Errorf("recorded response = %s, want the original NO", question.ResponseType)
	}
}

func TestMarkAnswered_WinsOverExpiry(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	q := newTestQueue(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	req := validRequest("late", 5)
	req.ExpiresIn = time.Minute
	id, err := q.SubmitQuestion(ctx, req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	later := now.Add(time.Hour)
	clock = &later
	if _, err := q.ExpireOldQuestions(ctx); err != nil {
		t.Fatalf("expire failed: %v", err)
	}

	// The answer still lands after the sweep got there first.
	err = q.MarkAnswered(ctx, id, &domain.Response{
		CorrelationID: "late",
		Type:          domain.ResponseYes,
	})
	if err != nil {
		t.Fatalf("answer after expiry failed: %v", err)
	}

	question, err := q.GetQuestion(ctx, id)
	if err != nil {
		t.Fatalf("get question failed: %v", err)
	}
	if question.Status != domain.QuestionAnswered {
		t.Errorf("status = %s, want answered", question.Status)
	}
}

func TestMarkAnswered_NotFound(t *testing.T) {
	q := newTestQueue(t)

	err := q.MarkAnswered(context.Background(), 12345, &domain.Response{
		CorrelationID: "c1",
		Type:          domain.ResponseYes,
	})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Errorf("got %v, want ErrQuestionNotFound", err)
	}
}

func TestSweeper_ExpiresOverdueQuestions(t *testing.T) {
	now := time.Now().UTC()
	clock := &now
	q := newTestQueue(t, WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	req := validRequest("sweep", 5)
	req.ExpiresIn = time.Minute
	id, err := q.SubmitQuestion(ctx, req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	later := now.Add(time.Hour)
	clock = &later

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		NewSweeper(q, 10*time.Millisecond).Start(sweepCtx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		question, err := q.GetQuestion(ctx, id)
		if err != nil {
			t.Fatalf("get question failed: %v", err)
		}
		if question.Status == domain.QuestionExpired {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never expired the question")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/subtract0/arbiter/internal/bus"
	"github.com/subtract0/arbiter/internal/core/domain"
	"github.com/subtract0/arbiter/internal/infra/storage/memory"
	"github.com/subtract0/arbiter/internal/review"
	"github.com/subtract0/arbiter/internal/routing"
)

// Scratch harness: runs the full submit -> decide -> route flow against
// in-memory storage. The real entry point is cmd/arbiter.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	// 1. Wire one bus over the in-memory store
	store := memory.NewMemoryStorage()
	b := bus.New(memory.NewMessageRepo(store), bus.WithPollInterval(50*time.Millisecond))
	reviews := review.NewQueue(memory.NewQuestionRepo(store), b)
	handler := routing.NewHandler(b, reviews)

	// 2. Submit a question
	correlationID := uuid.NewString()
	questionID, err := reviews.SubmitQuestion(ctx, domain.SubmitRequest{
		CorrelationID: correlationID,
		Text:          "Archive the 12 stale feature branches in the main repo?",
		Type:          domain.QuestionLowStakes,
		PatternContext: domain.PatternContext{
			Type:  "recurring_topic",
			Topic: "repo hygiene",
		},
		SuggestedAction: "archive stale branches",
		Priority:        5,
	})
	if err != nil {
		log.Fatalf("submit failed: %v", err)
	}
	fmt.Printf("Submitted question %d (%s)\n", questionID, correlationID)

	// 3. Approve it
	err = handler.ProcessResponse(ctx, questionID, &domain.Response{
		CorrelationID: correlationID,
		Type:          domain.ResponseYes,
		Comment:       "go ahead",
	})
	if err != nil {
		log.Fatalf("process failed: %v", err)
	}

	// 4. Consume the resulting execution task
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for msg := range b.Subscribe(subCtx, domain.QueueExecution) {
		fmt.Printf("Execution task: %s\n", msg.Payload)
		if err := b.AckMessage(ctx, msg); err != nil {
			log.Fatalf("ack failed: %v", err)
		}
		cancel()
	}

	// 5. Show stats
	stats, err := reviews.Stats(ctx)
	if err != nil {
		log.Fatalf("stats failed: %v", err)
	}
	fmt.Printf("Questions: %d, acceptance rate: %.2f\n", stats.TotalQuestions, stats.AcceptanceRate)
}

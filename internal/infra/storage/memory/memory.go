package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
)

// MemoryStorage backs the repositories with maps. Used for tests and for
// running the daemon without a database.
type MemoryStorage struct {
	messages  map[string]*domain.Message
	questions map[int64]*domain.Question
	nextID    int64
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages:  make(map[string]*domain.Message),
		questions: make(map[int64]*domain.Question),
	}
}

// -----------------------------------------------------------------------------
// Message Repository
// -----------------------------------------------------------------------------

type MessageRepo struct {
	store *MemoryStorage
}

func NewMessageRepo(store *MemoryStorage) *MessageRepo {
	return &MessageRepo{store: store}
}

func (r *MessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m := *msg
	r.store.messages[m.ID] = &m
	return nil
}

func (r *MessageRepo) ListPending(ctx context.Context, queue string, limit int) ([]*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var pending []*domain.Message
	for _, m := range r.store.messages {
		if m.QueueName == queue && m.Status == domain.DeliveryPending {
			cp := *m
			pending = append(pending, &cp)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *MessageRepo) Ack(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if m, ok := r.store.messages[id]; ok {
		m.Status = domain.DeliveryAcknowledged
	}
	// Unknown ids are already satisfied.
	return nil
}

func (r *MessageRepo) DeleteAcked(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for id, m := range r.store.messages {
		if m.Status == domain.DeliveryAcknowledged && m.EnqueuedAt.Before(before) {
			delete(r.store.messages, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MessageRepo) PendingCount(ctx context.Context, queue string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, m := range r.store.messages {
		if m.QueueName == queue && m.Status == domain.DeliveryPending {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Question Repository
// -----------------------------------------------------------------------------

type QuestionRepo struct {
	store *MemoryStorage
}

func NewQuestionRepo(store *MemoryStorage) *QuestionRepo {
	return &QuestionRepo{store: store}
}

func (r *QuestionRepo) Insert(ctx context.Context, q *domain.Question) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.nextID++
	cp := *q
	cp.ID = r.store.nextID
	r.store.questions[cp.ID] = &cp
	return cp.ID, nil
}

func (r *QuestionRepo) GetByID(ctx context.Context, id int64) (*domain.Question, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	q, ok := r.store.questions[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *QuestionRepo) GetByCorrelation(ctx context.Context, correlationID string) (*domain.Question, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.Question
	for _, q := range r.store.questions {
		if q.CorrelationID != correlationID {
			continue
		}
		if latest == nil || q.CreatedAt.After(latest.CreatedAt) ||
			(q.CreatedAt.Equal(latest.CreatedAt) && q.ID > latest.ID) {
			latest = q
		}
	}
	if latest == nil {
		return nil, domain.ErrQuestionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *QuestionRepo) ListPending(ctx context.Context, limit int, now time.Time) ([]*domain.Question, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var pending []*domain.Question
	for _, q := range r.store.questions {
		if q.Status == domain.QuestionPending && q.ExpiresAt.After(now) {
			cp := *q
			pending = append(pending, &cp)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *QuestionRepo) MarkAnswered(ctx context.Context, id int64, ans domain.Answer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	q, ok := r.store.questions[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if q.Status == domain.QuestionAnswered {
		return domain.ErrAlreadyAnswered
	}
	q.Status = domain.QuestionAnswered
	q.ResponseType = ans.Type
	answeredAt := ans.AnsweredAt
	q.AnsweredAt = &answeredAt
	rt := ans.ResponseTimeSeconds
	q.ResponseTimeSeconds = &rt
	return nil
}

func (r *QuestionRepo) ExpireOld(ctx context.Context, now time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, q := range r.store.questions {
		if q.Status == domain.QuestionPending && !q.ExpiresAt.After(now) {
			q.Status = domain.QuestionExpired
			count++
		}
	}
	return count, nil
}

func (r *QuestionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for id, q := range r.store.questions {
		if q.Status == domain.QuestionExpired && q.CreatedAt.Before(before) {
			delete(r.store.questions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *QuestionRepo) Stats(ctx context.Context) (*domain.QueueStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &domain.QueueStats{
		ByStatus:   make(map[string]int),
		ByResponse: make(map[string]int),
	}

	var totalResponseTime float64
	var responseCount int
	for _, q := range r.store.questions {
		stats.TotalQuestions++
		stats.ByStatus[string(q.Status)]++
		if q.Status == domain.QuestionAnswered && q.ResponseType != "" {
			stats.ByResponse[string(q.ResponseType)]++
		}
		if q.ResponseTimeSeconds != nil {
			totalResponseTime += *q.ResponseTimeSeconds
			responseCount++
		}
	}

	yes := stats.ByResponse[string(domain.ResponseYes)]
	no := stats.ByResponse[string(domain.ResponseNo)]
	if yes+no > 0 {
		stats.AcceptanceRate = float64(yes) / float64(yes+no)
	}
	if responseCount > 0 {
		stats.AvgResponseSeconds = totalResponseTime / float64(responseCount)
	}

	return stats, nil
}

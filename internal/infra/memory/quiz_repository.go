package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"trivia-live/internal/domain"
	"trivia-live/internal/infra/cache"
)

// QuizLoader fetches quiz content from a backing store (e.g., document DB).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository keeps loaded quizzes in process so hosts starting sessions
// do not each hit the document store. Concurrent misses for one quiz share a
// single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    *cache.TTL
	clock  clockwork.Clock
	sf     singleflight.Group

	mu      sync.RWMutex
	entries map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz domain.Quiz
	// zero means the entry never expires
	expiresAt time.Time
}

func (e cachedQuiz) live(now time.Time) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(now)
}

// NewQuizRepository caches for ttl plus jitter. A non-positive ttl keeps
// entries until they are invalidated.
func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return NewQuizRepositoryWithClock(loader, ttl, clockwork.NewRealClock())
}

func NewQuizRepositoryWithClock(loader QuizLoader, ttl time.Duration, clock clockwork.Clock) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     cache.NewTTL(ttl),
		clock:   clock,
		entries: make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		entry := cachedQuiz{quiz: quiz}
		if d := r.ttl.Next(); d > 0 {
			entry.expiresAt = r.clock.Now().Add(d)
		}
		r.mu.Lock()
		r.entries[quizID] = entry
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz after its document was edited.
func (r *QuizRepository) Invalidate(_ context.Context, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, quizID)
	return nil
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	if !ok || !entry.live(r.clock.Now()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

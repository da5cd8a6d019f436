package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository/memory"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	repo     *memory.Repository
	cache    *mapCache
	wallets  usecase.WalletUsecase
	earnings usecase.EarningUsecase
	payouts  usecase.PayoutUsecase
	summary  usecase.SummaryUsecase
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zaptest.NewLogger(t)
	repo := memory.NewRepository()
	summaries := newMapCache()
	opts := usecase.Options{
		DefaultCurrency: "USD",
		Now:             func() time.Time { return fixedNow },
	}

	return &fixture{
		repo:     repo,
		cache:    summaries,
		wallets:  usecase.NewWalletUsecase(repo, summaries, log, opts),
		earnings: usecase.NewEarningUsecase(repo, summaries, log, opts),
		payouts:  usecase.NewPayoutUsecase(repo, summaries, log, opts),
		summary:  usecase.NewSummaryUsecase(repo, summaries, log, opts),
	}
}

func (f *fixture) credit(t *testing.T, teacherID uuid.UUID, amount int64) *models.WalletTransaction {
	t.Helper()
	entry, err := f.wallets.Credit(context.Background(), teacherID, usecase.Posting{
		Amount:      amount,
		Description: "session payment",
	})
	if err != nil {
		t.Fatalf("credit %d: %v", amount, err)
	}
	return entry
}

// mapCache is an in-process SummaryCache that counts invalidations.
type mapCache struct {
	mu            sync.Mutex
	items         map[uuid.UUID]models.FinancialSummary
	invalidations map[uuid.UUID]int
}

func newMapCache() *mapCache {
	return &mapCache{
		items:         map[uuid.UUID]models.FinancialSummary{},
		invalidations: map[uuid.UUID]int{},
	}
}

func (c *mapCache) Get(_ context.Context, teacherID uuid.UUID) (*models.FinancialSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[teacherID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *mapCache) Set(_ context.Context, s *models.FinancialSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[s.TeacherID] = *s
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, teacherID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, teacherID)
	c.invalidations[teacherID]++
	return nil
}

func (c *mapCache) invalidated(teacherID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations[teacherID]
}

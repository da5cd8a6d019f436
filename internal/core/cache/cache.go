// Package cache keeps short-lived copies of financial summaries.
package cache

import (
	"context"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/google/uuid"
)

// SummaryCache stores FinancialSummary snapshots by teacher.
// Writers invalidate after commit; the TTL bounds how stale a hit can be.
type SummaryCache interface {
	Get(ctx context.Context, teacherID uuid.UUID) (*models.FinancialSummary, bool, error)
	Set(ctx context.Context, summary *models.FinancialSummary) error
	Invalidate(ctx context.Context, teacherID uuid.UUID) error
}

type nopCache struct{}

// NewNop returns a cache that never hits.
func NewNop() SummaryCache {
	return nopCache{}
}

func (nopCache) Get(context.Context, uuid.UUID) (*models.FinancialSummary, bool, error) {
	return nil, false, nil
}

func (nopCache) Set(context.Context, *models.FinancialSummary) error { return nil }

func (nopCache) Invalidate(context.Context, uuid.UUID) error { return nil }

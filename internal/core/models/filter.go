package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a window of a history listing. Page numbers start at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// DateRange is inclusive of From and exclusive of To. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

type TransactionFilter struct {
	Type   TransactionType
	Status TransactionStatus
	Range  DateRange
	Page   Page
}

type EarningFilter struct {
	Status EarningStatus
	Range  DateRange
	Page   Page
}

type PayoutFilter struct {
	TeacherID *uuid.UUID
	Status    PayoutStatus
	Range     DateRange
	Page      Page
}

// PageResult carries one page of items plus the unpaged total.
type PageResult[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Package memory provides an in-process LedgerRepository.
//
// Every unit of work runs behind one mutex on a private copy of the state,
// which is swapped in only when the unit succeeds. That gives the same
// guarantees the Postgres store provides through serializable transactions:
// mutations are strictly serialized and a failed unit leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Nzyazin/tutorledger/internal/core/models"
	"github.com/Nzyazin/tutorledger/internal/core/repository"
	"github.com/google/uuid"
)

type state struct {
	wallets      map[uuid.UUID]models.Wallet // by wallet id
	walletByUser map[uuid.UUID]uuid.UUID     // teacher id -> wallet id
	transactions map[uuid.UUID][]models.WalletTransaction
	earnings     map[uuid.UUID]models.Earning
	bySession    map[uuid.UUID]uuid.UUID
	payouts      map[uuid.UUID]models.PayoutRequest
	currencies   map[string]models.Currency
}

func newState() *state {
	return &state{
		wallets:      map[uuid.UUID]models.Wallet{},
		walletByUser: map[uuid.UUID]uuid.UUID{},
		transactions: map[uuid.UUID][]models.WalletTransaction{},
		earnings:     map[uuid.UUID]models.Earning{},
		bySession:    map[uuid.UUID]uuid.UUID{},
		payouts:      map[uuid.UUID]models.PayoutRequest{},
		currencies:   map[string]models.Currency{},
	}
}

// clone copies the maps. Transaction slices are copied with their capacity
// trimmed so appends in an uncommitted unit never alias committed storage.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.walletByUser {
		out.walletByUser[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v[:len(v):len(v)]
	}
	for k, v := range s.earnings {
		out.earnings[k] = v
	}
	for k, v := range s.bySession {
		out.bySession[k] = v
	}
	for k, v := range s.payouts {
		out.payouts[k] = v
	}
	for k, v := range s.currencies {
		out.currencies[k] = v
	}
	return out
}

// DefaultCurrencies mirrors the rows seeded by the Postgres schema.
var DefaultCurrencies = []models.Currency{
	{Code: "USD", Name: "US Dollar", Exponent: 2},
	{Code: "EUR", Name: "Euro", Exponent: 2},
	{Code: "GBP", Name: "Pound Sterling", Exponent: 2},
	{Code: "KES", Name: "Kenyan Shilling", Exponent: 2},
	{Code: "RUB", Name: "Russian Ruble", Exponent: 2},
	{Code: "JPY", Name: "Yen", Exponent: 0},
}

type Repository struct {
	mu    sync.Mutex
	state *state
}

var _ repository.LedgerRepository = (*Repository)(nil)

func NewRepository() *Repository {
	st := newState()
	for _, c := range DefaultCurrencies {
		st.currencies[c.Code] = c
	}
	return &Repository{state: st}
}

func (r *Repository) WithTx(ctx context.Context, mode repository.TxMode, fn func(repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&store{st: work, readOnly: mode == repository.ReadOnly}); err != nil {
		return err
	}
	if mode == repository.ReadWrite {
		r.state = work
	}
	return nil
}

type store struct {
	st       *state
	readOnly bool
}

var _ repository.Store = (*store)(nil)

var errReadOnly = errors.New("write in read-only transaction")

func (s *store) writable() error {
	if s.readOnly {
		return errReadOnly
	}
	return nil
}

func (s *store) InsertWalletIfAbsent(_ context.Context, w *models.Wallet) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}
	if _, ok := s.st.walletByUser[w.TeacherID]; ok {
		return false, nil
	}
	if _, ok := s.st.currencies[w.CurrencyCode]; !ok {
		return false, repository.ErrNotFound
	}
	s.st.wallets[w.ID] = *w
	s.st.walletByUser[w.TeacherID] = w.ID
	return true, nil
}

func (s *store) GetWalletByTeacher(_ context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	id, ok := s.st.walletByUser[teacherID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	w := s.st.wallets[id]
	return &w, nil
}

func (s *store) LockWalletByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.Wallet, error) {
	return s.GetWalletByTeacher(ctx, teacherID)
}

func (s *store) UpdateWalletBalance(_ context.Context, walletID uuid.UUID, balance int64) error {
	if err := s.writable(); err != nil {
		return err
	}
	if balance < 0 {
		return fmt.Errorf("wallet %s: balance %d violates non-negative constraint", walletID, balance)
	}
	w, ok := s.st.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	w.Balance = balance
	s.st.wallets[walletID] = w
	return nil
}

func (s *store) ListWallets(_ context.Context) ([]models.Wallet, error) {
	out := make([]models.Wallet, 0, len(s.st.wallets))
	for _, w := range s.st.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *store) InsertTransaction(_ context.Context, t *models.WalletTransaction) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.st.wallets[t.WalletID]; !ok {
		return repository.ErrNotFound
	}
	entry := *t
	entry.Metadata = t.Metadata.Clone()
	s.st.transactions[t.WalletID] = append(s.st.transactions[t.WalletID], entry)
	return nil
}

func (s *store) ListTransactions(_ context.Context, walletID uuid.UUID, f models.TransactionFilter) ([]models.WalletTransaction, int, error) {
	all := s.st.transactions[walletID]
	matched := []models.WalletTransaction{}
	// newest first, matching the seq ordering of the SQL store
	for i := len(all) - 1; i >= 0; i-- {
		t := all[i]
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if !f.Range.Contains(t.CreatedAt) {
			continue
		}
		t.Metadata = t.Metadata.Clone()
		matched = append(matched, t)
	}
	return paginate(matched, f.Page), len(matched), nil
}

func (s *store) SumTransactionDeltas(_ context.Context, walletID uuid.UUID) (int64, *int64, error) {
	all := s.st.transactions[walletID]
	var sum int64
	for _, t := range all {
		sum += t.Delta()
	}
	if len(all) == 0 {
		return sum, nil, nil
	}
	last := all[len(all)-1].BalanceAfter
	return sum, &last, nil
}

func (s *store) InsertEarningIfAbsent(_ context.Context, e *models.Earning) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}
	if _, ok := s.st.bySession[e.SessionID]; ok {
		return false, nil
	}
	s.st.earnings[e.ID] = *e
	s.st.bySession[e.SessionID] = e.ID
	return true, nil
}

func (s *store) GetEarningBySession(_ context.Context, sessionID uuid.UUID) (*models.Earning, error) {
	id, ok := s.st.bySession[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e := s.st.earnings[id]
	return &e, nil
}

func (s *store) LockEarning(_ context.Context, id uuid.UUID) (*models.Earning, error) {
	e, ok := s.st.earnings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *store) UpdateEarning(_ context.Context, e *models.Earning) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, ok := s.st.earnings[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Status = e.Status
	cur.PaidAt = e.PaidAt
	cur.UpdatedAt = e.UpdatedAt
	s.st.earnings[e.ID] = cur
	return nil
}

func (s *store) ListEarnings(_ context.Context, teacherID uuid.UUID, f models.EarningFilter) ([]models.Earning, int, error) {
	matched := []models.Earning{}
	for _, e := range s.st.earnings {
		if e.TeacherID != teacherID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.Range.Contains(e.CreatedAt) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt.UnixNano(), matched[j].CreatedAt.UnixNano(), matched[i].ID, matched[j].ID)
	})
	return paginate(matched, f.Page), len(matched), nil
}

func (s *store) SumEarned(_ context.Context, teacherID uuid.UUID, currency string) (int64, error) {
	var sum int64
	for _, e := range s.st.earnings {
		if e.TeacherID == teacherID && e.CurrencyCode == currency && e.Status != models.EarningCancelled {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *store) InsertPayout(_ context.Context, p *models.PayoutRequest) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.st.payouts[p.ID]; ok {
		return repository.ErrConflict
	}
	entry := *p
	entry.PaymentDetails = p.PaymentDetails.Clone()
	s.st.payouts[p.ID] = entry
	return nil
}

func (s *store) GetPayout(_ context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	p, ok := s.st.payouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.PaymentDetails = p.PaymentDetails.Clone()
	return &p, nil
}

func (s *store) LockPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	return s.GetPayout(ctx, id)
}

func (s *store) UpdatePayout(_ context.Context, p *models.PayoutRequest) error {
	if err := s.writable(); err != nil {
		return err
	}
	cur, ok := s.st.payouts[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Status = p.Status
	cur.AdminNote = p.AdminNote
	cur.ProcessedAt = p.ProcessedAt
	cur.ProcessedBy = p.ProcessedBy
	cur.TransactionID = p.TransactionID
	cur.UpdatedAt = p.UpdatedAt
	s.st.payouts[p.ID] = cur
	return nil
}

func (s *store) ListPayouts(_ context.Context, f models.PayoutFilter) ([]models.PayoutRequest, int, error) {
	matched := []models.PayoutRequest{}
	for _, p := range s.st.payouts {
		if f.TeacherID != nil && p.TeacherID != *f.TeacherID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if !f.Range.Contains(p.CreatedAt) {
			continue
		}
		p.PaymentDetails = p.PaymentDetails.Clone()
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return newerFirst(matched[i].CreatedAt.UnixNano(), matched[j].CreatedAt.UnixNano(), matched[i].ID, matched[j].ID)
	})
	return paginate(matched, f.Page), len(matched), nil
}

func (s *store) SumPendingPayouts(_ context.Context, teacherID uuid.UUID, currency string) (int64, error) {
	var sum int64
	for _, p := range s.st.payouts {
		if p.TeacherID == teacherID && p.CurrencyCode == currency && p.Status == models.PayoutPending {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (s *store) GetCurrencyByCode(_ context.Context, code string) (*models.Currency, error) {
	c, ok := s.st.currencies[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func newerFirst(a, b int64, idA, idB uuid.UUID) bool {
	if a == b {
		return idA.String() < idB.String()
	}
	return a > b
}

func paginate[T any](items []T, p models.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

package postgres

import (
	"fmt"
	"strings"

	"github.com/Nzyazin/tutorledger/internal/core/models"
)

// whereClause accumulates AND-ed conditions with positional arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereClause) addRange(column string, r models.DateRange) {
	if !r.From.IsZero() {
		w.add(column+" >= $%d", r.From)
	}
	if !r.To.IsZero() {
		w.add(column+" < $%d", r.To)
	}
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// limitOffset appends LIMIT/OFFSET placeholders and returns the full argument list.
func (w *whereClause) limitOffset(p models.Page) (string, []any) {
	args := append(append([]any{}, w.args...), p.Size, p.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) CreateLedger(ctx context.Context, l fee.Ledger, exec ...core.DBExecutor) (fee.Ledger, error) {
	err := repo.db.write(exec, func(t *tables) error {
		if _, ok := t.students[l.StudentID]; !ok {
			return fee.ErrNotFound
		}
		t.ledgers[l.StudentID] = l
		return nil
	})
	if err != nil {
		return fee.Ledger{}, err
	}
	return l, nil
}

func (repo *feeRepository) GetLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (fee.Ledger, error) {
	var ledger fee.Ledger
	err := repo.db.read(func(t *tables) error {
		l, ok := t.ledgers[studentID]
		if !ok {
			return fee.ErrNotFound
		}
		ledger = l
		return nil
	})
	return ledger, err
}

// LockLedger is GetLedger: units of work are already serialized.
func (repo *feeRepository) LockLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (fee.Ledger, error) {
	return repo.GetLedger(ctx, studentID, exec...)
}

func (repo *feeRepository) IncrementPaid(ctx context.Context, studentID string, amount decimal.Decimal, at time.Time, exec ...core.DBExecutor) (fee.Ledger, error) {
	var ledger fee.Ledger
	err := repo.db.write(exec, func(t *tables) error {
		l, ok := t.ledgers[studentID]
		if !ok {
			return fee.ErrNotFound
		}
		l.AmountPaid = l.AmountPaid.Add(amount)
		l.RemainingFee = fee.RemainingFee(l.FinalFee, l.AmountPaid)
		l.UpdatedAt = at
		t.ledgers[studentID] = l
		ledger = l
		return nil
	})
	return ledger, err
}

func (repo *feeRepository) UpdateTerms(ctx context.Context, l fee.Ledger, exec ...core.DBExecutor) (fee.Ledger, error) {
	var ledger fee.Ledger
	err := repo.db.write(exec, func(t *tables) error {
		stored, ok := t.ledgers[l.StudentID]
		if !ok {
			return fee.ErrNotFound
		}
		stored.TotalFee = l.TotalFee
		stored.DiscountPercent = l.DiscountPercent
		stored.FinalFee = l.FinalFee
		stored.Installments = l.Installments
		stored.RemainingFee = fee.RemainingFee(stored.FinalFee, stored.AmountPaid)
		stored.UpdatedAt = l.UpdatedAt
		t.ledgers[l.StudentID] = stored
		ledger = stored
		return nil
	})
	return ledger, err
}

func (repo *feeRepository) CreatePayment(ctx context.Context, p fee.Payment, exec ...core.DBExecutor) (fee.Payment, error) {
	err := repo.db.write(exec, func(t *tables) error {
		p.ID = uuid.New().String()
		t.payments = append(t.payments, p)
		return nil
	})
	if err != nil {
		return fee.Payment{}, err
	}
	return p, nil
}

func (repo *feeRepository) QueryPayments(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]fee.Payment, error) {
	payments := make([]fee.Payment, 0)
	_ = repo.db.read(func(t *tables) error {
		for _, p := range t.payments {
			if p.StudentID == studentID {
				payments = append(payments, p)
			}
		}
		return nil
	})
	return payments, nil
}

func (repo *feeRepository) CreateOrder(ctx context.Context, o fee.Order, exec ...core.DBExecutor) (fee.Order, error) {
	err := repo.db.write(exec, func(t *tables) error {
		t.orders[o.OrderID] = o
		return nil
	})
	if err != nil {
		return fee.Order{}, err
	}
	return o, nil
}

func (repo *feeRepository) GetOrder(ctx context.Context, orderID string, exec ...core.DBExecutor) (fee.Order, error) {
	var order fee.Order
	err := repo.db.read(func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return fee.ErrOrderNotFound
		}
		order = o
		return nil
	})
	return order, err
}

func (repo *feeRepository) UpdateOrderCheckout(ctx context.Context, orderID, token, redirectURL string, at time.Time, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return fee.ErrOrderNotFound
		}
		o.Token = token
		o.RedirectURL = redirectURL
		o.UpdatedAt = at
		t.orders[orderID] = o
		return nil
	})
}

func (repo *feeRepository) SetOrderStatus(ctx context.Context, orderID string, from, to fee.OrderStatus, at time.Time, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := repo.db.write(exec, func(t *tables) error {
		o, found := t.orders[orderID]
		if !found {
			return fee.ErrOrderNotFound
		}
		if o.Status != from {
			return nil
		}
		o.Status = to
		o.UpdatedAt = at
		t.orders[orderID] = o
		ok = true
		return nil
	})
	return ok, err
}

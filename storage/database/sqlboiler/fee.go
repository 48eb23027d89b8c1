package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

const (
	ledgerColumns  = "student_id, school_id, total_fee, discount_percent, final_fee, amount_paid, remaining_fee, installments, updated_at"
	paymentColumns = "id, student_id, school_id, amount, method, order_id, transaction_id, signature, status, recorded_by, created_at"
	orderColumns   = "order_id, student_id, school_id, amount, status, token, redirect_url, created_by, created_at, updated_at"
)

type ledgerRow struct {
	StudentID       string          `boil:"student_id"`
	SchoolID        string          `boil:"school_id"`
	TotalFee        decimal.Decimal `boil:"total_fee"`
	DiscountPercent decimal.Decimal `boil:"discount_percent"`
	FinalFee        decimal.Decimal `boil:"final_fee"`
	AmountPaid      decimal.Decimal `boil:"amount_paid"`
	RemainingFee    decimal.Decimal `boil:"remaining_fee"`
	Installments    int             `boil:"installments"`
	UpdatedAt       time.Time       `boil:"updated_at"`
}

type paymentRow struct {
	ID            string          `boil:"id"`
	StudentID     string          `boil:"student_id"`
	SchoolID      string          `boil:"school_id"`
	Amount        decimal.Decimal `boil:"amount"`
	Method        string          `boil:"method"`
	OrderID       null.String     `boil:"order_id"`
	TransactionID null.String     `boil:"transaction_id"`
	Signature     null.String     `boil:"signature"`
	Status        string          `boil:"status"`
	RecordedBy    null.String     `boil:"recorded_by"`
	CreatedAt     time.Time       `boil:"created_at"`
}

type orderRow struct {
	OrderID     string          `boil:"order_id"`
	StudentID   string          `boil:"student_id"`
	SchoolID    string          `boil:"school_id"`
	Amount      decimal.Decimal `boil:"amount"`
	Status      string          `boil:"status"`
	Token       string          `boil:"token"`
	RedirectURL string          `boil:"redirect_url"`
	CreatedBy   null.String     `boil:"created_by"`
	CreatedAt   time.Time       `boil:"created_at"`
	UpdatedAt   time.Time       `boil:"updated_at"`
}

type feeRepository struct {
	store
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(exec core.DBExecutor, engine string) *feeRepository {
	return &feeRepository{store: newStore(exec, engine)}
}

// amounts are read back at the cent: sqlite keeps NUMERIC values as floats.
func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (repo feeRepository) unboilLedger(r ledgerRow) fee.Ledger {
	return fee.Ledger{
		StudentID:       r.StudentID,
		SchoolID:        r.SchoolID,
		TotalFee:        cents(r.TotalFee),
		DiscountPercent: cents(r.DiscountPercent),
		FinalFee:        cents(r.FinalFee),
		AmountPaid:      cents(r.AmountPaid),
		RemainingFee:    cents(r.RemainingFee),
		Installments:    r.Installments,
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (repo feeRepository) unboilPayment(r paymentRow) fee.Payment {
	return fee.Payment{
		ID:            r.ID,
		StudentID:     r.StudentID,
		SchoolID:      r.SchoolID,
		Amount:        cents(r.Amount),
		Method:        fee.PaymentMethod(r.Method),
		OrderID:       r.OrderID.String,
		TransactionID: r.TransactionID.String,
		Signature:     r.Signature.String,
		Status:        fee.PaymentStatus(r.Status),
		RecordedBy:    r.RecordedBy.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (repo feeRepository) unboilOrder(r orderRow) fee.Order {
	return fee.Order{
		OrderID:     r.OrderID,
		StudentID:   r.StudentID,
		SchoolID:    r.SchoolID,
		Amount:      cents(r.Amount),
		Status:      fee.OrderStatus(r.Status),
		Token:       r.Token,
		RedirectURL: r.RedirectURL,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo feeRepository) CreateLedger(ctx context.Context, l fee.Ledger, exec ...core.DBExecutor) (fee.Ledger, error) {
	_, err := repo.execute(ctx, exec,
		"INSERT INTO fee_ledgers ("+ledgerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.StudentID, l.SchoolID, l.TotalFee, l.DiscountPercent, l.FinalFee, l.AmountPaid, l.RemainingFee,
		l.Installments, l.UpdatedAt.UTC())
	if err != nil {
		return fee.Ledger{}, errors.Wrap(err, "inserting fee ledger")
	}
	return l, nil
}

func (repo feeRepository) getLedger(ctx context.Context, studentID, suffix string, exec []core.DBExecutor) (fee.Ledger, error) {
	if !isID(studentID) {
		return fee.Ledger{}, fee.ErrNotFound
	}
	var row ledgerRow
	err := repo.bind(ctx, exec, &row, "SELECT "+ledgerColumns+" FROM fee_ledgers WHERE student_id = ?"+suffix, studentID)
	if err != nil {
		return fee.Ledger{}, trapNoRows(err, fee.ErrNotFound, "finding fee ledger")
	}
	return repo.unboilLedger(row), nil
}

func (repo feeRepository) GetLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (fee.Ledger, error) {
	return repo.getLedger(ctx, studentID, "", exec)
}

func (repo feeRepository) LockLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (fee.Ledger, error) {
	return repo.getLedger(ctx, studentID, repo.forUpdate(), exec)
}

// IncrementPaid updates then reads the row back with the same executor.
// Within a transaction, the row stays locked between both statements.
func (repo feeRepository) IncrementPaid(ctx context.Context, studentID string, amount decimal.Decimal, at time.Time, exec ...core.DBExecutor) (fee.Ledger, error) {
	if !isID(studentID) {
		return fee.Ledger{}, fee.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		`UPDATE fee_ledgers SET
			amount_paid = amount_paid + CAST(? AS NUMERIC),
			remaining_fee = CASE WHEN final_fee - (amount_paid + CAST(? AS NUMERIC)) > 0
				THEN final_fee - (amount_paid + CAST(? AS NUMERIC)) ELSE 0 END,
			updated_at = ?
		WHERE student_id = ?`,
		amount, amount, amount, at.UTC(), studentID)
	if err != nil {
		return fee.Ledger{}, errors.Wrap(err, "incrementing amount paid")
	}
	if n == 0 {
		return fee.Ledger{}, fee.ErrNotFound
	}
	return repo.GetLedger(ctx, studentID, exec...)
}

func (repo feeRepository) UpdateTerms(ctx context.Context, l fee.Ledger, exec ...core.DBExecutor) (fee.Ledger, error) {
	if !isID(l.StudentID) {
		return fee.Ledger{}, fee.ErrNotFound
	}
	n, err := repo.affected(ctx, exec,
		`UPDATE fee_ledgers SET
			total_fee = ?, discount_percent = ?, final_fee = ?, installments = ?,
			remaining_fee = CASE WHEN CAST(? AS NUMERIC) - amount_paid > 0 THEN CAST(? AS NUMERIC) - amount_paid ELSE 0 END,
			updated_at = ?
		WHERE student_id = ?`,
		l.TotalFee, l.DiscountPercent, l.FinalFee, l.Installments, l.FinalFee, l.FinalFee, l.UpdatedAt.UTC(), l.StudentID)
	if err != nil {
		return fee.Ledger{}, errors.Wrap(err, "updating fee terms")
	}
	if n == 0 {
		return fee.Ledger{}, fee.ErrNotFound
	}
	return repo.GetLedger(ctx, l.StudentID, exec...)
}

func (repo feeRepository) CreatePayment(ctx context.Context, p fee.Payment, exec ...core.DBExecutor) (fee.Payment, error) {
	p.ID = uuid.New().String()
	_, err := repo.execute(ctx, exec,
		"INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.StudentID, p.SchoolID, p.Amount, string(p.Method), nullIfEmpty(p.OrderID), nullIfEmpty(p.TransactionID),
		nullIfEmpty(p.Signature), string(p.Status), nullIfEmpty(p.RecordedBy), p.CreatedAt.UTC())
	if err != nil {
		return fee.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo feeRepository) QueryPayments(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]fee.Payment, error) {
	payments := make([]fee.Payment, 0)
	if !isID(studentID) {
		return payments, nil
	}
	var rows []paymentRow
	err := repo.bind(ctx, exec, &rows,
		"SELECT "+paymentColumns+" FROM payments WHERE student_id = ? ORDER BY created_at, id", studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	for _, r := range rows {
		payments = append(payments, repo.unboilPayment(r))
	}
	return payments, nil
}

func (repo feeRepository) CreateOrder(ctx context.Context, o fee.Order, exec ...core.DBExecutor) (fee.Order, error) {
	_, err := repo.execute(ctx, exec,
		"INSERT INTO payment_orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.OrderID, o.StudentID, o.SchoolID, o.Amount, string(o.Status), o.Token, o.RedirectURL,
		nullIfEmpty(o.CreatedBy), o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return fee.Order{}, errors.Wrap(err, "inserting payment order")
	}
	return o, nil
}

func (repo feeRepository) GetOrder(ctx context.Context, orderID string, exec ...core.DBExecutor) (fee.Order, error) {
	var row orderRow
	err := repo.bind(ctx, exec, &row, "SELECT "+orderColumns+" FROM payment_orders WHERE order_id = ?", orderID)
	if err != nil {
		return fee.Order{}, trapNoRows(err, fee.ErrOrderNotFound, "finding payment order")
	}
	return repo.unboilOrder(row), nil
}

func (repo feeRepository) UpdateOrderCheckout(ctx context.Context, orderID, token, redirectURL string, at time.Time, exec ...core.DBExecutor) error {
	n, err := repo.affected(ctx, exec,
		"UPDATE payment_orders SET token = ?, redirect_url = ?, updated_at = ? WHERE order_id = ?",
		token, redirectURL, at.UTC(), orderID)
	if err != nil {
		return errors.Wrap(err, "updating payment order checkout")
	}
	if n == 0 {
		return fee.ErrOrderNotFound
	}
	return nil
}

func (repo feeRepository) SetOrderStatus(ctx context.Context, orderID string, from, to fee.OrderStatus, at time.Time, exec ...core.DBExecutor) (bool, error) {
	n, err := repo.affected(ctx, exec,
		"UPDATE payment_orders SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?",
		string(to), at.UTC(), orderID, string(from))
	if err != nil {
		return false, errors.Wrap(err, "updating payment order status")
	}
	if n > 0 {
		return true, nil
	}
	if _, err = repo.GetOrder(ctx, orderID, exec...); err != nil {
		return false, err
	}
	return false, nil
}

package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("fee ledger")
	ErrOrderNotFound = core.NewNotFoundError("payment order")
	ErrInvalidAmount = core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount must be greater than 0"})
	ErrFullyPaid     = core.NewConflictError("fee already fully paid")
	errAmountTooHigh = "amount cannot exceed the remaining fee"
	errDiscountRange = "discount percent must be between 0 and 100"
)

type (
	Repository interface {
		CreateLedger(ctx context.Context, l Ledger, exec ...core.DBExecutor) (Ledger, error)
		GetLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (Ledger, error)
		// LockLedger is GetLedger with a write lock held until the end of the transaction `exec` belongs to.
		LockLedger(ctx context.Context, studentID string, exec ...core.DBExecutor) (Ledger, error)
		// IncrementPaid adds amount to amount_paid and recomputes remaining_fee in a single atomic statement,
		// evaluated by the store against the current row (no read-modify-write).
		IncrementPaid(ctx context.Context, studentID string, amount decimal.Decimal, at time.Time, exec ...core.DBExecutor) (Ledger, error)
		// UpdateTerms sets the fee terms; remaining_fee is recomputed from the stored amount_paid by the store.
		UpdateTerms(ctx context.Context, l Ledger, exec ...core.DBExecutor) (Ledger, error)

		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		// QueryPayments returns the Payments of a Student in creation order.
		QueryPayments(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]Payment, error)

		CreateOrder(ctx context.Context, o Order, exec ...core.DBExecutor) (Order, error)
		GetOrder(ctx context.Context, orderID string, exec ...core.DBExecutor) (Order, error)
		UpdateOrderCheckout(ctx context.Context, orderID, token, redirectURL string, at time.Time, exec ...core.DBExecutor) error
		// SetOrderStatus moves an Order from status `from` to `to`.
		// It returns false, without error, when the Order is not in status `from` anymore.
		SetOrderStatus(ctx context.Context, orderID string, from, to OrderStatus, at time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		students student.Repository
		users    user.Repository
		gateway  Gateway
		logger   core.Logger
	}
)

var _ student.LedgerOpener = (*Service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	students student.Repository,
	users user.Repository,
	gateway Gateway,
	logger core.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		students: students,
		users:    users,
		gateway:  gateway,
		logger:   logger,
	}
}

// OpenLedger creates the Ledger of a newly enrolled Student with nothing paid.
func (svc *Service) OpenLedger(ctx context.Context, s student.Student, terms student.FeeTerms, exec core.DBExecutor) error {
	var flds []core.FieldError
	if terms.TotalFee.IsNegative() {
		flds = append(flds, core.FieldError{Field: "total_fee", Error: "total fee cannot be negative"})
	}
	if !validDiscount(terms.DiscountPercent) {
		flds = append(flds, core.FieldError{Field: "discount_percent", Error: errDiscountRange})
	}
	if terms.Installments < 0 {
		flds = append(flds, core.FieldError{Field: "installments", Error: "installments must be greater than 0"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}

	installments := terms.Installments
	if installments == 0 {
		installments = DefaultInstallments
	}
	final := FinalFee(terms.TotalFee, terms.DiscountPercent)
	_, err := svc.repo.CreateLedger(ctx, Ledger{
		StudentID:       s.ID,
		SchoolID:        s.SchoolID,
		TotalFee:        terms.TotalFee,
		DiscountPercent: terms.DiscountPercent,
		FinalFee:        final,
		AmountPaid:      decimal.Zero,
		RemainingFee:    final,
		Installments:    installments,
		UpdatedAt:       time.Now().UTC(),
	}, exec)
	return errors.Wrap(err, "creating fee ledger")
}

// RecordPayment appends a Payment and adds its amount to the Ledger as a single unit.
// Payments exceeding the remaining fee are accepted; the remaining fee never goes below 0.
func (svc *Service) RecordPayment(ctx context.Context, studentID string, amount decimal.Decimal, refs PaymentRefs) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}

	var pmt Payment
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		pmt, err = svc.recordPayment(ctx, exec, studentID, amount, refs)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	return pmt, nil
}

func (svc *Service) recordPayment(
	ctx context.Context,
	exec core.DBExecutor,
	studentID string,
	amount decimal.Decimal,
	refs PaymentRefs,
) (Payment, error) {
	now := time.Now().UTC()
	ledger, err := svc.repo.IncrementPaid(ctx, studentID, amount, now, exec)
	if err != nil {
		return Payment{}, err
	}

	method := refs.Method
	if method == "" {
		method = MethodManual
	}
	pmt, err := svc.repo.CreatePayment(ctx, Payment{
		StudentID:     studentID,
		SchoolID:      ledger.SchoolID,
		Amount:        amount,
		Method:        method,
		OrderID:       refs.OrderID,
		TransactionID: refs.TransactionID,
		Signature:     refs.Signature,
		Status:        StatusSuccess,
		RecordedBy:    refs.RecordedBy,
		CreatedAt:     now,
	}, exec)
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}
	return pmt, nil
}

func (svc *Service) getStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) (student.Student, error) {
	stud, err := svc.students.GetStudent(ctx, student.GetFilter{ID: studentID}, exec...)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Student{}, ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	return stud, nil
}

func (svc *Service) authorize(ctx context.Context, p user.Principal, studentID string, manage bool) (student.Student, error) {
	stud, err := svc.getStudent(ctx, studentID)
	if err != nil {
		return student.Student{}, err
	}
	if manage && !student.CanManage(p, stud) || !manage && !student.CanView(p, stud) {
		return student.Student{}, core.ErrForbidden
	}
	return stud, nil
}

// RecordManualPayment records a payment received by the school office.
func (svc *Service) RecordManualPayment(ctx context.Context, p user.Principal, studentID string, amount decimal.Decimal) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	if _, err := svc.authorize(ctx, p, studentID, true); err != nil {
		return Payment{}, err
	}
	return svc.RecordPayment(ctx, studentID, amount, PaymentRefs{Method: MethodManual, RecordedBy: p.UserID})
}

// UpdateFeeTerms changes the fee terms of a Ledger. FinalFee is recomputed from the resulting terms
// and RemainingFee from the existing AmountPaid; payment history is never altered.
func (svc *Service) UpdateFeeTerms(ctx context.Context, p user.Principal, studentID string, ut UpdateTerms) (Ledger, error) {
	if err := ut.Validate(); err != nil {
		return Ledger{}, err
	}
	if _, err := svc.authorize(ctx, p, studentID, true); err != nil {
		return Ledger{}, err
	}

	var ledger Ledger
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		l, err := svc.repo.LockLedger(ctx, studentID, exec)
		if err != nil {
			return err
		}
		if ut.TotalFee != nil {
			l.TotalFee = *ut.TotalFee
		}
		if ut.DiscountPercent != nil {
			l.DiscountPercent = *ut.DiscountPercent
		}
		if ut.Installments != nil {
			l.Installments = *ut.Installments
		}
		l.FinalFee = FinalFee(l.TotalFee, l.DiscountPercent)
		l.UpdatedAt = time.Now().UTC()

		ledger, err = svc.repo.UpdateTerms(ctx, l, exec)
		return errors.Wrap(err, "updating fee terms")
	})
	if err != nil {
		return Ledger{}, err
	}
	return ledger, nil
}

func (svc *Service) GetLedger(ctx context.Context, p user.Principal, studentID string) (Ledger, error) {
	if _, err := svc.authorize(ctx, p, studentID, false); err != nil {
		return Ledger{}, err
	}
	return svc.repo.GetLedger(ctx, studentID)
}

func (svc *Service) ListPayments(ctx context.Context, p user.Principal, studentID string) ([]Payment, error) {
	if _, err := svc.authorize(ctx, p, studentID, false); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, studentID)
}

// Statement returns the Ledger with its Payments and installment projection.
func (svc *Service) Statement(ctx context.Context, p user.Principal, studentID string) (Statement, error) {
	if _, err := svc.authorize(ctx, p, studentID, false); err != nil {
		return Statement{}, err
	}
	ledger, err := svc.repo.GetLedger(ctx, studentID)
	if err != nil {
		return Statement{}, err
	}
	payments, err := svc.repo.QueryPayments(ctx, studentID)
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []Payment{}
	}
	return Statement{
		Ledger:       ledger,
		Payments:     payments,
		Installments: MatchPayments(ledger, payments),
	}, nil
}

// CreateOrder opens a gateway checkout for `amount` (the remaining fee when zero), rounded up to a whole unit.
func (svc *Service) CreateOrder(ctx context.Context, p user.Principal, studentID string, amount decimal.Decimal) (Order, error) {
	if amount.IsNegative() {
		return Order{}, ErrInvalidAmount
	}
	stud, err := svc.authorize(ctx, p, studentID, false)
	if err != nil {
		return Order{}, err
	}
	ledger, err := svc.repo.GetLedger(ctx, studentID)
	if err != nil {
		return Order{}, err
	}
	if !ledger.RemainingFee.IsPositive() {
		return Order{}, ErrFullyPaid
	}
	if amount.IsZero() {
		amount = ledger.RemainingFee
	} else if amount.GreaterThan(ledger.RemainingFee) {
		return Order{}, core.NewValidationError(nil, core.FieldError{Field: "amount", Error: errAmountTooHigh})
	}
	// the gateway charges whole currency units: the Order keeps what is actually charged
	amount = amount.Ceil()

	now := time.Now().UTC()
	order, err := svc.repo.CreateOrder(ctx, Order{
		OrderID:   fmt.Sprintf("FEE-%s", uuid.New().String()),
		StudentID: studentID,
		SchoolID:  ledger.SchoolID,
		Amount:    amount,
		Status:    OrderPending,
		CreatedBy: p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Order{}, errors.Wrap(err, "creating payment order")
	}

	cust := Customer{Name: stud.Name}
	if usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: stud.UserID}); err == nil {
		cust.Email = usr.Email
	}
	token, redirectURL, err := svc.gateway.CreateOrder(ctx, order, cust)
	if err != nil {
		if _, sErr := svc.repo.SetOrderStatus(ctx, order.OrderID, OrderPending, OrderFailed, time.Now().UTC()); sErr != nil {
			svc.logger.Error(fmt.Sprintf("fee.CreateOrder: %v", sErr), sErr)
		}
		return Order{}, errors.Wrap(err, "creating gateway order")
	}
	if err = svc.repo.UpdateOrderCheckout(ctx, order.OrderID, token, redirectURL, time.Now().UTC()); err != nil {
		return Order{}, errors.Wrap(err, "saving gateway checkout")
	}
	order.Token = token
	order.RedirectURL = redirectURL
	return order, nil
}

// HandleNotification applies a gateway payment notification.
// The signature is verified first; a settled Order records exactly one Payment however many times it is notified.
func (svc *Service) HandleNotification(ctx context.Context, n Notification) (Order, error) {
	if !svc.gateway.VerifySignature(n) {
		return Order{}, core.ErrForbidden
	}
	order, err := svc.repo.GetOrder(ctx, n.OrderID)
	if err != nil {
		return Order{}, err
	}
	gross, err := decimal.NewFromString(n.GrossAmount)
	if err != nil || !gross.Equal(order.Amount) {
		return Order{}, core.NewValidationError(nil, core.FieldError{Field: "gross_amount", Error: "gross amount does not match the order"})
	}

	switch {
	case n.settled():
		err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			ok, err := svc.repo.SetOrderStatus(ctx, order.OrderID, OrderPending, OrderPaid, time.Now().UTC(), exec)
			if err != nil {
				return errors.Wrap(err, "setting order status")
			}
			if !ok { // already handled
				return nil
			}
			_, err = svc.recordPayment(ctx, exec, order.StudentID, order.Amount, PaymentRefs{
				Method:        MethodGateway,
				OrderID:       order.OrderID,
				TransactionID: n.TransactionID,
				Signature:     n.SignatureKey,
			})
			return err
		})
	case n.failed():
		_, err = svc.repo.SetOrderStatus(ctx, order.OrderID, OrderPending, OrderFailed, time.Now().UTC())
	}
	if err != nil {
		return Order{}, err
	}
	return svc.repo.GetOrder(ctx, order.OrderID)
}

package fee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
)

// DefaultInstallments is the number of installments of a new ledger.
const DefaultInstallments = 3

type (
	PaymentMethod string
	PaymentStatus string
	OrderStatus   string
)

const (
	MethodManual  PaymentMethod = "MANUAL"
	MethodGateway PaymentMethod = "GATEWAY"

	StatusSuccess PaymentStatus = "SUCCESS"

	OrderPending OrderStatus = "PENDING"
	OrderPaid    OrderStatus = "PAID"
	OrderFailed  OrderStatus = "FAILED"
)

var hundred = decimal.NewFromInt(100)

// Ledger is the fee account of a Student.
// RemainingFee is always max(FinalFee - AmountPaid, 0).
type Ledger struct {
	StudentID       string          `json:"student_id"`
	SchoolID        string          `json:"school_id"`
	TotalFee        decimal.Decimal `json:"total_fee"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FinalFee        decimal.Decimal `json:"final_fee"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	RemainingFee    decimal.Decimal `json:"remaining_fee"`
	Installments    int             `json:"installments"`
	UpdatedAt       time.Time       `json:"updated_at"` // UTC
}

// FinalFee returns totalFee × (1 − discountPercent/100), rounded to the cent.
func FinalFee(totalFee, discountPercent decimal.Decimal) decimal.Decimal {
	return totalFee.Mul(hundred.Sub(discountPercent)).Div(hundred).Round(2)
}

// RemainingFee returns max(finalFee − amountPaid, 0).
func RemainingFee(finalFee, amountPaid decimal.Decimal) decimal.Decimal {
	if rem := finalFee.Sub(amountPaid); rem.IsPositive() {
		return rem
	}
	return decimal.Zero
}

// Payment is an append-only record of money received for a Student.
type Payment struct {
	ID            string          `json:"id"`
	StudentID     string          `json:"student_id"`
	SchoolID      string          `json:"school_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	OrderID       string          `json:"order_id,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Signature     string          `json:"-"`
	Status        PaymentStatus   `json:"status"`
	RecordedBy    string          `json:"recorded_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"` // UTC
}

// PaymentRefs are the opaque references stored along with a Payment.
type PaymentRefs struct {
	Method        PaymentMethod
	OrderID       string
	TransactionID string
	Signature     string
	RecordedBy    string
}

// Order is a checkout opened on the payment gateway.
type Order struct {
	OrderID     string          `json:"order_id"`
	StudentID   string          `json:"student_id"`
	SchoolID    string          `json:"school_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      OrderStatus     `json:"status"`
	Token       string          `json:"token,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
	UpdatedAt   time.Time       `json:"updated_at"` // UTC
}

// Statement is the read model of a Ledger: the ledger, its payments and the installment projection.
type Statement struct {
	Ledger       Ledger        `json:"ledger"`
	Payments     []Payment     `json:"payments"`
	Installments []Installment `json:"installments"`
}

type NewPayment struct {
	Amount decimal.Decimal `json:"amount"`
}

type NewOrder struct {
	Amount decimal.Decimal `json:"amount"` // zero means the remaining fee
}

// UpdateTerms defines the fee terms that may be changed; nil fields are kept.
type UpdateTerms struct {
	TotalFee        *decimal.Decimal `json:"total_fee"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	Installments    *int             `json:"installments"`
}

func (ut UpdateTerms) Validate() error {
	var flds []core.FieldError
	if ut.TotalFee != nil && !ut.TotalFee.IsPositive() {
		flds = append(flds, core.FieldError{Field: "total_fee", Error: "total fee must be greater than 0"})
	}
	if ut.DiscountPercent != nil && !validDiscount(*ut.DiscountPercent) {
		flds = append(flds, core.FieldError{Field: "discount_percent", Error: errDiscountRange})
	}
	if ut.Installments != nil && *ut.Installments <= 0 {
		flds = append(flds, core.FieldError{Field: "installments", Error: "installments must be greater than 0"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func validDiscount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

// Notification is the payment status callback sent by the gateway.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

func (n Notification) settled() bool {
	switch n.TransactionStatus {
	case "settlement":
		return true
	case "capture":
		return n.FraudStatus == "" || n.FraudStatus == "accept"
	}
	return false
}

func (n Notification) failed() bool {
	switch n.TransactionStatus {
	case "deny", "cancel", "expire", "failure":
		return true
	}
	return false
}

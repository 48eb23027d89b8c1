package fee

import "github.com/shopspring/decimal"

// Installment is one of the N equal parts of a Ledger's final fee.
type Installment struct {
	Index     int             `json:"index"` // 1-based
	DueAmount decimal.Decimal `json:"due_amount"`
	Paid      bool            `json:"paid"`
	// PaidByPaymentID is a best effort guess of the Payment that completed the installment (display only).
	PaidByPaymentID string `json:"paid_by_payment_id,omitempty"`
}

// PerInstallment returns ceil(FinalFee / Installments).
func PerInstallment(l Ledger) decimal.Decimal {
	if l.Installments <= 0 {
		return decimal.Zero
	}
	return l.FinalFee.Div(decimal.NewFromInt(int64(l.Installments))).Ceil()
}

// threshold returns the cumulative amount to pay for installment i to be paid.
func threshold(per decimal.Decimal, i int) decimal.Decimal {
	return per.Mul(decimal.NewFromInt(int64(i)))
}

// ProjectInstallments partitions the Ledger's final fee into Ledger.Installments installments.
// Installment i is paid iff AmountPaid >= PerInstallment * i.
// Every installment is due PerInstallment; when the final fee does not divide evenly,
// the last installment is only paid once AmountPaid reaches PerInstallment * Installments.
// It is recomputed on every read and never stored.
func ProjectInstallments(l Ledger) []Installment {
	if l.Installments <= 0 {
		return []Installment{}
	}
	per := PerInstallment(l)
	insts := make([]Installment, 0, l.Installments)
	for i := 1; i <= l.Installments; i++ {
		insts = append(insts, Installment{
			Index:     i,
			DueAmount: per,
			Paid:      l.AmountPaid.GreaterThanOrEqual(threshold(per, i)),
		})
	}
	return insts
}

// MatchPayments projects the installments of l and walks payments (in creation order)
// to guess which Payment completed each paid installment.
// Partial payments rarely land on installment boundaries: the result is for display only.
func MatchPayments(l Ledger, payments []Payment) []Installment {
	insts := ProjectInstallments(l)
	if len(insts) == 0 {
		return insts
	}
	per := PerInstallment(l)

	cumul := decimal.Zero
	next := 0
	for _, p := range payments {
		cumul = cumul.Add(p.Amount)
		for next < len(insts) && insts[next].Paid && cumul.GreaterThanOrEqual(threshold(per, next+1)) {
			insts[next].PaidByPaymentID = p.ID
			next++
		}
	}
	return insts
}

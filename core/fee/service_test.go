package fee_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/tests"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "%s = %s; want %s", msg, got, want)
}

func TestService_Scenario(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *testutil.Env{
		"inmem":  testutil.NewEnv,
		"sqlite": testutil.NewSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t)
			sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
			_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
			stud, studP := testutil.EnrollStudent(t, env, sch.ID, "A001", "", d("10000"), d("10"))

			ledger, err := env.FeeSvc.GetLedger(ctx, studP, stud.ID)
			require.NoError(t, err)
			assertAmount(t, "9000", ledger.FinalFee, "final fee")
			assertAmount(t, "9000", ledger.RemainingFee, "remaining fee")
			assertAmount(t, "0", ledger.AmountPaid, "amount paid")
			assert.Equal(t, fee.DefaultInstallments, ledger.Installments)

			pmt, err := env.FeeSvc.RecordManualPayment(ctx, admin, stud.ID, d("3000"))
			require.NoError(t, err)
			assert.Equal(t, fee.MethodManual, pmt.Method)
			assert.Equal(t, admin.UserID, pmt.RecordedBy)

			st, err := env.FeeSvc.Statement(ctx, studP, stud.ID)
			require.NoError(t, err)
			assertAmount(t, "3000", st.Ledger.AmountPaid, "amount paid")
			assertAmount(t, "6000", st.Ledger.RemainingFee, "remaining fee")
			require.Len(t, st.Payments, 1)
			require.Len(t, st.Installments, 3)
			assert.True(t, st.Installments[0].Paid)
			assert.Equal(t, pmt.ID, st.Installments[0].PaidByPaymentID)
			assert.False(t, st.Installments[1].Paid)

			// overpaying is accepted, the remaining fee stops at 0
			_, err = env.FeeSvc.RecordManualPayment(ctx, admin, stud.ID, d("7000"))
			require.NoError(t, err)
			ledger, err = env.FeeSvc.GetLedger(ctx, admin, stud.ID)
			require.NoError(t, err)
			assertAmount(t, "10000", ledger.AmountPaid, "amount paid")
			assertAmount(t, "0", ledger.RemainingFee, "remaining fee")
		})
	}
}

func TestService_RecordPayment_Concurrent(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *testutil.Env{
		"inmem":  testutil.NewEnv,
		"sqlite": testutil.NewSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			env := newEnv(t)
			sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
			stud, _ := testutil.EnrollStudent(t, env, sch.ID, "A001", "", d("1000"), d("0"))

			const workers = 10
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := env.FeeSvc.RecordPayment(context.Background(), stud.ID, d("100"), fee.PaymentRefs{})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			ledger, err := env.Fees.GetLedger(context.Background(), stud.ID)
			require.NoError(t, err)
			assertAmount(t, "1000", ledger.AmountPaid, "amount paid")
			assertAmount(t, "0", ledger.RemainingFee, "remaining fee")

			payments, err := env.Fees.QueryPayments(context.Background(), stud.ID)
			require.NoError(t, err)
			assert.Len(t, payments, workers)
		})
	}
}

func TestService_RecordManualPayment_Errors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	other := testutil.CreateSchool(t, env, "Beta", "beta")
	_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	_, otherAdmin := testutil.CreateMember(t, env, other.ID, "other", user.RoleAdmin)
	_, teacher := testutil.CreateMember(t, env, sch.ID, "teacher", user.RoleTeacher)
	stud, studP := testutil.EnrollStudent(t, env, sch.ID, "A001", "", d("1000"), d("0"))

	tests := []struct {
		name      string
		p         user.Principal
		studentID string
		amount    string
		check     func(error) bool
	}{
		{name: "zero amount", p: admin, studentID: stud.ID, amount: "0", check: core.IsValidation},
		{name: "negative amount", p: admin, studentID: stud.ID, amount: "-5", check: core.IsValidation},
		{name: "unknown student", p: admin, studentID: "8f5a6c02-5b7e-4c41-9d3f-0a6f7c1d2e3b", amount: "10", check: core.IsNotFound},
		{name: "other school admin", p: otherAdmin, studentID: stud.ID, amount: "10", check: isForbidden},
		{name: "teacher", p: teacher, studentID: stud.ID, amount: "10", check: isForbidden},
		{name: "student", p: studP, studentID: stud.ID, amount: "10", check: isForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.FeeSvc.RecordManualPayment(ctx, tt.p, tt.studentID, d(tt.amount))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	ledger, err := env.Fees.GetLedger(ctx, stud.ID)
	require.NoError(t, err)
	assertAmount(t, "0", ledger.AmountPaid, "amount paid")
}

func isForbidden(err error) bool { return errors.Cause(err) == core.ErrForbidden }

func TestService_UpdateFeeTerms(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	_, admin := testutil.CreateMember(t, env, sch.ID, "admin", user.RoleAdmin)
	stud, studP := testutil.EnrollStudent(t, env, sch.ID, "A001", "", d("10000"), d("10"))
	_, err := env.FeeSvc.RecordManualPayment(ctx, admin, stud.ID, d("3000"))
	require.NoError(t, err)

	discount := d("50")
	installments := 2
	ledger, err := env.FeeSvc.UpdateFeeTerms(ctx, admin, stud.ID, fee.UpdateTerms{DiscountPercent: &discount, Installments: &installments})
	require.NoError(t, err)
	assertAmount(t, "10000", ledger.TotalFee, "total fee")
	assertAmount(t, "5000", ledger.FinalFee, "final fee")
	assertAmount(t, "3000", ledger.AmountPaid, "amount paid")
	assertAmount(t, "2000", ledger.RemainingFee, "remaining fee")
	assert.Equal(t, 2, ledger.Installments)

	payments, err := env.FeeSvc.ListPayments(ctx, studP, stud.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1, "payment history is kept")

	t.Run("invalid terms", func(t *testing.T) {
		bad := d("120")
		zero := 0
		_, err := env.FeeSvc.UpdateFeeTerms(ctx, admin, stud.ID, fee.UpdateTerms{DiscountPercent: &bad, Installments: &zero})
		require.Error(t, err)
		assert.True(t, core.IsValidation(err))
	})

	t.Run("students cannot change terms", func(t *testing.T) {
		_, err := env.FeeSvc.UpdateFeeTerms(ctx, studP, stud.ID, fee.UpdateTerms{Installments: &installments})
		assert.True(t, isForbidden(err))
	})
}

func TestService_Orders(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
	_, parent := testutil.CreateMember(t, env, sch.ID, "parent", user.RoleParent)
	stud, _ := testutil.EnrollStudent(t, env, sch.ID, "A001", parent.UserID, d("9000"), d("0"))

	order, err := env.FeeSvc.CreateOrder(ctx, parent, stud.ID, d("3000"))
	require.NoError(t, err)
	assert.Equal(t, fee.OrderPending, order.Status)
	assert.NotEmpty(t, order.Token)
	assert.NotEmpty(t, order.RedirectURL)
	assertAmount(t, "3000", order.Amount, "order amount")

	t.Run("amount above remaining fee", func(t *testing.T) {
		_, err := env.FeeSvc.CreateOrder(ctx, parent, stud.ID, d("9001"))
		assert.True(t, core.IsValidation(err))
	})

	t.Run("bad signature", func(t *testing.T) {
		n := env.Gateway.Notification(order, "settlement")
		n.SignatureKey = "forged"
		_, err := env.FeeSvc.HandleNotification(ctx, n)
		assert.True(t, isForbidden(err))
	})

	t.Run("gross amount mismatch", func(t *testing.T) {
		forged := order
		forged.Amount = d("1")
		_, err := env.FeeSvc.HandleNotification(ctx, env.Gateway.Notification(forged, "settlement"))
		assert.True(t, core.IsValidation(err))
	})

	t.Run("settlement is applied once", func(t *testing.T) {
		n := env.Gateway.Notification(order, "settlement")
		for i := 0; i < 3; i++ {
			got, err := env.FeeSvc.HandleNotification(ctx, n)
			require.NoError(t, err)
			assert.Equal(t, fee.OrderPaid, got.Status)
		}

		ledger, err := env.Fees.GetLedger(ctx, stud.ID)
		require.NoError(t, err)
		assertAmount(t, "3000", ledger.AmountPaid, "amount paid")

		payments, err := env.Fees.QueryPayments(ctx, stud.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, fee.MethodGateway, payments[0].Method)
		assert.Equal(t, order.OrderID, payments[0].OrderID)
		assert.Equal(t, n.TransactionID, payments[0].TransactionID)
	})

	t.Run("failure", func(t *testing.T) {
		o, err := env.FeeSvc.CreateOrder(ctx, parent, stud.ID, decimal.Zero)
		require.NoError(t, err)
		assertAmount(t, "6000", o.Amount, "defaults to the remaining fee")

		got, err := env.FeeSvc.HandleNotification(ctx, env.Gateway.Notification(o, "expire"))
		require.NoError(t, err)
		assert.Equal(t, fee.OrderFailed, got.Status)

		// a late settlement of a failed order is ignored
		got, err = env.FeeSvc.HandleNotification(ctx, env.Gateway.Notification(o, "settlement"))
		require.NoError(t, err)
		assert.Equal(t, fee.OrderFailed, got.Status)
	})

	t.Run("gateway error", func(t *testing.T) {
		env.Gateway.Err = errors.New("gateway down")
		defer func() { env.Gateway.Err = nil }()
		_, err := env.FeeSvc.CreateOrder(ctx, parent, stud.ID, d("10"))
		require.Error(t, err)
	})

	t.Run("fully paid", func(t *testing.T) {
		_, err := env.FeeSvc.RecordPayment(ctx, stud.ID, d("6000"), fee.PaymentRefs{})
		require.NoError(t, err)
		_, err = env.FeeSvc.CreateOrder(ctx, parent, stud.ID, decimal.Zero)
		assert.True(t, core.IsConflict(err))
	})
}

func TestService_Orders_FractionalFee(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *testutil.Env{
		"inmem":  testutil.NewEnv,
		"sqlite": testutil.NewSQLiteEnv,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t)
			sch := testutil.CreateSchool(t, env, "Alpha", "alpha")
			_, parent := testutil.CreateMember(t, env, sch.ID, "parent", user.RoleParent)
			stud, _ := testutil.EnrollStudent(t, env, sch.ID, "A001", parent.UserID, d("100"), d("33.333"))

			ledger, err := env.Fees.GetLedger(ctx, stud.ID)
			require.NoError(t, err)
			assertAmount(t, "66.67", ledger.RemainingFee, "remaining fee")

			order, err := env.FeeSvc.CreateOrder(ctx, parent, stud.ID, decimal.Zero)
			require.NoError(t, err)
			assertAmount(t, "67", order.Amount, "order amount is what the gateway charges")

			n := env.Gateway.Notification(order, "settlement")
			assert.Equal(t, "67.00", n.GrossAmount)
			got, err := env.FeeSvc.HandleNotification(ctx, n)
			require.NoError(t, err)
			assert.Equal(t, fee.OrderPaid, got.Status)

			ledger, err = env.Fees.GetLedger(ctx, stud.ID)
			require.NoError(t, err)
			assertAmount(t, "67", ledger.AmountPaid, "amount paid")
			assertAmount(t, "0", ledger.RemainingFee, "remaining fee")
		})
	}
}

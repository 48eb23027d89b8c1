package paymentsvc

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

type midtransGateway struct {
	serverKey string
	client    snap.Client
}

var _ fee.Gateway = (*midtransGateway)(nil) // interface compliance check

// NewMidtransGateway returns a fee.Gateway opening Midtrans Snap checkouts.
// The sandbox environment is used unless conf.Payment.Production is set.
func NewMidtransGateway(conf *core.Config) *midtransGateway {
	gw := &midtransGateway{serverKey: conf.Payment.MidtransServerKey}
	env := midtrans.Sandbox
	if conf.Payment.Production {
		env = midtrans.Production
	}
	gw.client.New(conf.Payment.MidtransServerKey, env)
	return gw
}

func (gw *midtransGateway) CreateOrder(ctx context.Context, order fee.Order, customer fee.Customer) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	amount := order.Amount.IntPart() // whole units, see fee.Service.CreateOrder
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.OrderID,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: customer.Name,
			Email: customer.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       order.OrderID,
				Price:    amount,
				Qty:      1,
				Name:     "School fee",
				Category: "FEE",
			},
		},
	}

	resp, mErr := gw.client.CreateTransaction(req)
	if mErr != nil {
		return "", "", errors.Wrap(mErr, "creating snap transaction")
	}
	return resp.Token, resp.RedirectURL, nil
}

// Signature returns SHA512(order_id + status_code + gross_amount + server_key), hex encoded.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (gw *midtransGateway) VerifySignature(n fee.Notification) bool {
	if n.SignatureKey == "" || gw.serverKey == "" {
		return false
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, gw.serverKey)
	got := strings.ToLower(n.SignatureKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

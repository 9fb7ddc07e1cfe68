package enums

import "fmt"

// PaymentPurpose tags a gateway intent so the webhook path can reconstruct
// which domain object to mutate without client-side context.
type PaymentPurpose string

const (
	PaymentPurposeWalletTopup      PaymentPurpose = "wallet_topup"
	PaymentPurposeBillPayment      PaymentPurpose = "bill_payment"
	PaymentPurposeWholesalePayment PaymentPurpose = "wholesale_payment"
	PaymentPurposeStorePayment     PaymentPurpose = "store_payment"
)

var validPaymentPurposes = []PaymentPurpose{
	PaymentPurposeWalletTopup,
	PaymentPurposeBillPayment,
	PaymentPurposeWholesalePayment,
	PaymentPurposeStorePayment,
}

// String implements fmt.Stringer.
func (p PaymentPurpose) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentPurpose.
func (p PaymentPurpose) IsValid() bool {
	for _, candidate := range validPaymentPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentPurpose converts raw input into a PaymentPurpose.
func ParsePaymentPurpose(value string) (PaymentPurpose, error) {
	for _, candidate := range validPaymentPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment purpose %q", value)
}

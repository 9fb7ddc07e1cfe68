package enums

import "fmt"

// TransactionKind classifies a wallet ledger entry.
type TransactionKind string

const (
	TransactionKindTopup      TransactionKind = "topup"
	TransactionKindPayment    TransactionKind = "payment"
	TransactionKindRefund     TransactionKind = "refund"
	TransactionKindEarnings   TransactionKind = "earnings"
	TransactionKindCommission TransactionKind = "commission"
	TransactionKindSettlement TransactionKind = "settlement"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindTopup,
	TransactionKindPayment,
	TransactionKindRefund,
	TransactionKindEarnings,
	TransactionKindCommission,
	TransactionKindSettlement,
}

// String implements fmt.Stringer.
func (t TransactionKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionKind.
func (t TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}

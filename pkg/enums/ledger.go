package enums

import "fmt"

// LedgerEntryType is the direction of a ledger mutation.
type LedgerEntryType string

const (
	LedgerEntryTypeDebit  LedgerEntryType = "debit"
	LedgerEntryTypeCredit LedgerEntryType = "credit"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeDebit,
	LedgerEntryTypeCredit,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

// LedgerAccountType identifies which balance an entry touched.
type LedgerAccountType string

const (
	LedgerAccountTypePartner LedgerAccountType = "partner"
	LedgerAccountTypeWallet  LedgerAccountType = "wallet"
)

var validLedgerAccountTypes = []LedgerAccountType{
	LedgerAccountTypePartner,
	LedgerAccountTypeWallet,
}

// IsValid reports whether the value matches the canonical account type enum.
func (t LedgerAccountType) IsValid() bool {
	for _, candidate := range validLedgerAccountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerAccountType converts raw input into LedgerAccountType.
func ParseLedgerAccountType(value string) (LedgerAccountType, error) {
	for _, candidate := range validLedgerAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger account type %q", value)
}

package enums

import "fmt"

// PayerType discriminates who funds an order. Exactly one payer reference is
// present on any order row.
type PayerType string

const (
	PayerTypePartner PayerType = "partner"
	PayerTypeUser    PayerType = "user"
)

var validPayerTypes = []PayerType{
	PayerTypePartner,
	PayerTypeUser,
}

// String implements fmt.Stringer.
func (p PayerType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayerType.
func (p PayerType) IsValid() bool {
	for _, candidate := range validPayerTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayerType converts raw input into a PayerType.
func ParsePayerType(value string) (PayerType, error) {
	for _, candidate := range validPayerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payer type %q", value)
}

package enums

import "fmt"

// PartsSource records who procures parts after a quote is approved.
type PartsSource string

const (
	PartsSourceTechnician PartsSource = "technician"
	PartsSourceCustomer   PartsSource = "customer"
)

var validPartsSources = []PartsSource{
	PartsSourceTechnician,
	PartsSourceCustomer,
}

// String implements fmt.Stringer.
func (p PartsSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PartsSource.
func (p PartsSource) IsValid() bool {
	for _, candidate := range validPartsSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePartsSource converts raw input into a PartsSource.
func ParsePartsSource(value string) (PartsSource, error) {
	for _, candidate := range validPartsSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid parts source %q", value)
}

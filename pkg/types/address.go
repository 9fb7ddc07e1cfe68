package types

import "strings"

// Address is the delivery address snapshot stored on a parts order. It is
// copied at confirmation time so later profile edits do not rewrite history.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// Validate checks the fields a deliverable address must carry.
func (a Address) Validate() error {
	for field, value := range map[string]string{
		"line1":       a.Line1,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
	} {
		if strings.TrimSpace(value) == "" {
			return &MissingAddressFieldError{Field: field}
		}
	}
	return nil
}

// MissingAddressFieldError reports an absent required address field.
type MissingAddressFieldError struct {
	Field string
}

func (e *MissingAddressFieldError) Error() string {
	return "address: missing " + e.Field
}

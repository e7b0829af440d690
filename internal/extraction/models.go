// Package extraction implements the multi-strategy document data extraction
// chain. Strategies are tried in priority order against a document image;
// the chain keeps the best result seen and never returns an error — when every
// strategy fails it degrades to a low-confidence invalid result so the
// verification state machine keeps moving.
package extraction

import (
	"context"
)

// DocumentType declares what kind of identity document was submitted.
type DocumentType string

const (
	DocumentPassport       DocumentType = "passport"
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentNationalID     DocumentType = "national_id"
	DocumentOther          DocumentType = "other"
)

// Valid reports whether the document type is one of the accepted values.
func (d DocumentType) Valid() bool {
	switch d {
	case DocumentPassport, DocumentDriversLicense, DocumentNationalID, DocumentOther:
		return true
	}
	return false
}

// Field names the identity fields the extraction schema recognizes. Unknown
// provider field codes are ignored, never errors.
type Field string

const (
	FieldName             Field = "name"
	FieldFirstName        Field = "first_name"
	FieldLastName         Field = "last_name"
	FieldDocumentNumber   Field = "document_number"
	FieldDateOfBirth      Field = "date_of_birth"
	FieldExpirationDate   Field = "expiration_date"
	FieldIssuingAuthority Field = "issuing_authority"
	FieldNationality      Field = "nationality"
	FieldAddress          Field = "address"
)

// ValidationStatus grades how complete a result's parsed fields are.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationPartial ValidationStatus = "partial"
	ValidationInvalid ValidationStatus = "invalid"
)

// Result is one strategy's output. Created per attempt, never mutated; the
// chain keeps only the best-so-far result.
type Result struct {
	Method       string
	RawData      string
	Confidence   float64
	ParsedFields map[Field]string
	Status       ValidationStatus
}

// Field returns the named parsed field, or "" when absent.
func (r *Result) Field(f Field) string {
	if r == nil || r.ParsedFields == nil {
		return ""
	}
	return r.ParsedFields[f]
}

// FieldCount returns how many recognized fields carry non-empty values.
func (r *Result) FieldCount() int {
	n := 0
	for _, v := range r.ParsedFields {
		if v != "" {
			n++
		}
	}
	return n
}

// Strategy is one extraction method in the chain. Available lets a strategy
// declare itself out of service (unconfigured provider, missing credentials)
// so the chain skips it instead of probing at call time.
type Strategy interface {
	Name() string
	Available() bool
	Extract(ctx context.Context, image []byte, docType DocumentType) (*Result, error)
}


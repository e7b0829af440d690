// Package strategies holds the concrete extraction strategies wired into the
// chain: PDF417 barcode decode, pattern-constrained OCR, unconstrained OCR,
// and an external AI document analyzer. Each strategy consumes its provider
// through a narrow interface so tests can substitute fakes.
package strategies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
)

// BarcodeDecoder is the provider contract for PDF417 decoding. It returns the
// raw machine-readable payload from the back of an ID document.
type BarcodeDecoder interface {
	DecodePDF417(ctx context.Context, image []byte) (string, error)
}

// Barcode decodes the PDF417 stripe and parses AAMVA data elements into the
// fixed field schema. Structured data earns high confidence: the payload is
// machine-written, so a successful decode with the required elements present
// is the most reliable extraction method in the chain.
type Barcode struct {
	decoder BarcodeDecoder
}

func NewBarcode(decoder BarcodeDecoder) *Barcode {
	return &Barcode{decoder: decoder}
}

func (b *Barcode) Name() string { return "pdf417_barcode" }

func (b *Barcode) Available() bool { return b.decoder != nil }

// aamvaElements maps AAMVA data element identifiers onto the extraction field
// schema. Unknown element codes are ignored by design.
var aamvaElements = map[string]extraction.Field{
	"DCS": extraction.FieldLastName,
	"DAC": extraction.FieldFirstName,
	"DAQ": extraction.FieldDocumentNumber,
	"DBA": extraction.FieldExpirationDate,
	"DBB": extraction.FieldDateOfBirth,
	"DAG": extraction.FieldAddress,
	"DCG": extraction.FieldNationality,
}

func (b *Barcode) Extract(ctx context.Context, image []byte, docType extraction.DocumentType) (*extraction.Result, error) {
	payload, err := b.decoder.DecodePDF417(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("decode pdf417: %w", err)
	}
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("decode pdf417: empty payload")
	}

	fields := parseAAMVA(payload)

	// Compose the full name when the payload carries the split parts.
	first, last := fields[extraction.FieldFirstName], fields[extraction.FieldLastName]
	if first != "" || last != "" {
		fields[extraction.FieldName] = strings.TrimSpace(first + " " + last)
	}

	confidence := 0.95
	status := extraction.ValidationValid
	if fields[extraction.FieldDocumentNumber] == "" || fields[extraction.FieldName] == "" {
		// A decodable stripe missing core elements is suspect.
		confidence = 0.6
		status = extraction.ValidationPartial
	}
	if len(fields) == 0 {
		confidence = 0.2
		status = extraction.ValidationInvalid
	}

	return &extraction.Result{
		Method:       b.Name(),
		RawData:      payload,
		Confidence:   confidence,
		ParsedFields: fields,
		Status:       status,
	}, nil
}

// parseAAMVA walks the payload line-wise, mapping known three-letter element
// identifiers to schema fields. Dates arrive as MMDDCCYY and are normalized
// to ISO form.
func parseAAMVA(payload string) map[extraction.Field]string {
	fields := make(map[extraction.Field]string)
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 4 {
			continue
		}
		code := line[:3]
		value := strings.TrimSpace(line[3:])
		if value == "" {
			continue
		}
		field, ok := aamvaElements[code]
		if !ok {
			continue
		}
		if field == extraction.FieldExpirationDate || field == extraction.FieldDateOfBirth {
			value = normalizeAAMVADate(value)
			if value == "" {
				continue
			}
		}
		fields[field] = value
	}
	return fields
}

// normalizeAAMVADate converts MMDDCCYY to yyyy-mm-dd, returning "" when the
// value does not parse as a calendar date.
func normalizeAAMVADate(raw string) string {
	t, err := time.Parse("01022006", raw)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

package strategies

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
)

// TextRecognizer is the provider contract for OCR. Confidence is the
// recognizer's own estimate over the whole page, in [0,1].
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// PatternOCR runs the recognizer and extracts fields with document-layout
// regular expressions. It beats free-text OCR on documents whose layout the
// patterns cover, and loses gracefully (fewer fields, lower coverage factor)
// on ones they do not.
type PatternOCR struct {
	recognizer TextRecognizer
}

func NewPatternOCR(recognizer TextRecognizer) *PatternOCR {
	return &PatternOCR{recognizer: recognizer}
}

func (p *PatternOCR) Name() string { return "pattern_ocr" }

func (p *PatternOCR) Available() bool { return p.recognizer != nil }

var (
	reDocumentNumber = regexp.MustCompile(`(?i)(?:DL|ID|NO|LIC|DOC)[.#:\s]*([A-Z0-9]{5,15})`)
	rePassportNumber = regexp.MustCompile(`(?i)passport\s*(?:no|number)?[.#:\s]*([A-Z0-9]{6,10})`)
	reName           = regexp.MustCompile(`(?i)(?:name|nom)[:\s]+([A-Z][A-Za-z'\- ]{2,40})`)
	reDOB            = regexp.MustCompile(`(?i)(?:DOB|birth)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4})`)
	reExpiration     = regexp.MustCompile(`(?i)(?:EXP|expires?|expiry)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4})`)
)

func (p *PatternOCR) Extract(ctx context.Context, image []byte, docType extraction.DocumentType) (*extraction.Result, error) {
	text, confidence, err := p.recognizer.Recognize(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	fields := make(map[extraction.Field]string)

	numberRe := reDocumentNumber
	if docType == extraction.DocumentPassport {
		numberRe = rePassportNumber
	}
	if m := numberRe.FindStringSubmatch(text); m != nil {
		fields[extraction.FieldDocumentNumber] = strings.TrimSpace(m[1])
	}
	if m := reName.FindStringSubmatch(text); m != nil {
		fields[extraction.FieldName] = strings.TrimSpace(m[1])
	}
	if m := reDOB.FindStringSubmatch(text); m != nil {
		if iso := normalizeSlashedDate(m[1]); iso != "" {
			fields[extraction.FieldDateOfBirth] = iso
		}
	}
	if m := reExpiration.FindStringSubmatch(text); m != nil {
		if iso := normalizeSlashedDate(m[1]); iso != "" {
			fields[extraction.FieldExpirationDate] = iso
		}
	}

	// Pattern coverage scales the recognizer's page confidence: hitting all
	// four patterns keeps it intact, hitting none floors it.
	coverage := float64(len(fields)) / 4.0
	adjusted := confidence * (0.4 + 0.6*coverage)

	return &extraction.Result{
		Method:       p.Name(),
		RawData:      text,
		Confidence:   clamp01(adjusted),
		ParsedFields: fields,
		Status:       statusFor(fields),
	}, nil
}

// FreeTextOCR is the last local resort: it runs the recognizer without layout
// assumptions and applies only loose heuristics. Its confidence is capped so
// it can never early-exit the chain.
type FreeTextOCR struct {
	recognizer TextRecognizer
}

func NewFreeTextOCR(recognizer TextRecognizer) *FreeTextOCR {
	return &FreeTextOCR{recognizer: recognizer}
}

func (f *FreeTextOCR) Name() string { return "free_text_ocr" }

func (f *FreeTextOCR) Available() bool { return f.recognizer != nil }

// freeTextConfidenceCap keeps unconstrained OCR below the early-exit bar.
const freeTextConfidenceCap = 0.5

var reAnyDate = regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4}`)
var reUppercaseRun = regexp.MustCompile(`\b([A-Z]{2,}(?: [A-Z]{2,}){1,3})\b`)

func (f *FreeTextOCR) Extract(ctx context.Context, image []byte, docType extraction.DocumentType) (*extraction.Result, error) {
	text, confidence, err := f.recognizer.Recognize(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	fields := make(map[extraction.Field]string)
	if m := reUppercaseRun.FindStringSubmatch(text); m != nil {
		fields[extraction.FieldName] = strings.TrimSpace(m[1])
	}
	if dates := reAnyDate.FindAllString(text, -1); len(dates) > 0 {
		// Latest date on the document is most likely the expiration.
		latest := ""
		var latestT time.Time
		for _, d := range dates {
			if iso := normalizeSlashedDate(d); iso != "" {
				t, _ := time.Parse("2006-01-02", iso)
				if latest == "" || t.After(latestT) {
					latest, latestT = iso, t
				}
			}
		}
		if latest != "" {
			fields[extraction.FieldExpirationDate] = latest
		}
	}

	capped := confidence
	if capped > freeTextConfidenceCap {
		capped = freeTextConfidenceCap
	}

	return &extraction.Result{
		Method:       f.Name(),
		RawData:      text,
		Confidence:   clamp01(capped),
		ParsedFields: fields,
		Status:       statusFor(fields),
	}, nil
}

// normalizeSlashedDate converts mm/dd/yyyy (or -, . separated) to yyyy-mm-dd.
func normalizeSlashedDate(raw string) string {
	cleaned := strings.NewReplacer("-", "/", ".", "/").Replace(raw)
	for _, layout := range []string{"01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func statusFor(fields map[extraction.Field]string) extraction.ValidationStatus {
	switch {
	case len(fields) >= 3:
		return extraction.ValidationValid
	case len(fields) > 0:
		return extraction.ValidationPartial
	default:
		return extraction.ValidationInvalid
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

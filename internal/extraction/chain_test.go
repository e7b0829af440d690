package extraction

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrategy is a scriptable strategy that records invocations.
type fakeStrategy struct {
	name      string
	available bool
	result    *Result
	err       error
	panics    bool
	calls     int
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Available() bool { return f.available }

func (f *fakeStrategy) Extract(ctx context.Context, image []byte, docType DocumentType) (*Result, error) {
	f.calls++
	if f.panics {
		panic("provider exploded")
	}
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func resultWith(method string, confidence float64, fields int) *Result {
	parsed := make(map[Field]string)
	names := []Field{FieldName, FieldDocumentNumber, FieldExpirationDate, FieldDateOfBirth}
	for i := 0; i < fields && i < len(names); i++ {
		parsed[names[i]] = "value"
	}
	return &Result{Method: method, Confidence: confidence, ParsedFields: parsed, Status: ValidationValid}
}

func TestChain_EarlyExitSkipsRemainingStrategies(t *testing.T) {
	first := &fakeStrategy{name: "barcode", available: true, result: resultWith("barcode", 0.95, 3)}
	second := &fakeStrategy{name: "ocr", available: true, result: resultWith("ocr", 0.99, 4)}

	chain := NewChain([]Strategy{first, second}, testLogger())
	result := chain.Extract(context.Background(), []byte("img"), DocumentDriversLicense)

	require.NotNil(t, result)
	assert.Equal(t, "barcode", result.Method)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "early exit must not invoke later strategies")
}

func TestChain_HighConfidenceWithTooFewFieldsKeepsGoing(t *testing.T) {
	first := &fakeStrategy{name: "barcode", available: true, result: resultWith("barcode", 0.95, 1)}
	second := &fakeStrategy{name: "ocr", available: true, result: resultWith("ocr", 0.7, 3)}

	chain := NewChain([]Strategy{first, second}, testLogger())
	result := chain.Extract(context.Background(), []byte("img"), DocumentDriversLicense)

	assert.Equal(t, 1, second.calls, "field bar not met, chain must continue")
	assert.Equal(t, "barcode", result.Method, "highest confidence still wins")
}

func TestChain_KeepsBestResultAcrossStrategies(t *testing.T) {
	low := &fakeStrategy{name: "a", available: true, result: resultWith("a", 0.3, 1)}
	high := &fakeStrategy{name: "b", available: true, result: resultWith("b", 0.6, 2)}
	lower := &fakeStrategy{name: "c", available: true, result: resultWith("c", 0.4, 2)}

	chain := NewChain([]Strategy{low, high, lower}, testLogger())
	result := chain.Extract(context.Background(), nil, DocumentPassport)

	assert.Equal(t, "b", result.Method)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
}

func TestChain_AllFailuresDegradeInsteadOfError(t *testing.T) {
	broken := &fakeStrategy{name: "a", available: true, err: errors.New("boom")}
	panicky := &fakeStrategy{name: "b", available: true, panics: true}

	chain := NewChain([]Strategy{broken, panicky}, testLogger())
	result := chain.Extract(context.Background(), nil, DocumentOther)

	require.NotNil(t, result)
	assert.Equal(t, "degraded", result.Method)
	assert.LessOrEqual(t, result.Confidence, 0.1)
	assert.Equal(t, ValidationInvalid, result.Status)
}

func TestChain_SkipsUnavailableStrategies(t *testing.T) {
	offline := &fakeStrategy{name: "a", available: false, result: resultWith("a", 0.9, 4)}
	online := &fakeStrategy{name: "b", available: true, result: resultWith("b", 0.85, 3)}

	chain := NewChain([]Strategy{offline, online}, testLogger())
	result := chain.Extract(context.Background(), nil, DocumentNationalID)

	assert.Equal(t, 0, offline.calls)
	assert.Equal(t, "b", result.Method)
}

func TestChain_FailureThenSuccessUsesSuccess(t *testing.T) {
	broken := &fakeStrategy{name: "a", available: true, err: errors.New("decoder offline")}
	working := &fakeStrategy{name: "b", available: true, result: resultWith("b", 0.75, 2)}

	chain := NewChain([]Strategy{broken, working}, testLogger())
	result := chain.Extract(context.Background(), nil, DocumentDriversLicense)

	assert.Equal(t, "b", result.Method)
}

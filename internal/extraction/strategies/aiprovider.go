package strategies

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
)

// AIProvider calls an external vision service over HTTP and decodes its
// response against a strict schema. A response that does not match the schema
// is rejected with a SchemaError — the chain falls through to nothing rather
// than guessing at whatever fields happen to exist.
type AIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewAIProvider builds the strategy. An empty baseURL leaves the strategy
// unavailable, which the chain skips without error.
func NewAIProvider(client *http.Client, baseURL, apiKey string) *AIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &AIProvider{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (a *AIProvider) Name() string { return "ai_provider" }

func (a *AIProvider) Available() bool { return a.baseURL != "" }

// aiRequest is the provider wire request.
type aiRequest struct {
	Image        string `json:"image"`
	DocumentType string `json:"document_type"`
}

// aiResponse is the only accepted provider response shape. Unknown top-level
// keys fail the decode.
type aiResponse struct {
	Confidence float64           `json:"confidence"`
	Fields     map[string]string `json:"fields"`
	RawText    string            `json:"raw_text"`
}

// knownProviderFields maps provider field names onto the extraction schema.
// Field names outside this map are dropped, not errors.
var knownProviderFields = map[string]extraction.Field{
	"name":              extraction.FieldName,
	"first_name":        extraction.FieldFirstName,
	"last_name":         extraction.FieldLastName,
	"document_number":   extraction.FieldDocumentNumber,
	"date_of_birth":     extraction.FieldDateOfBirth,
	"expiration_date":   extraction.FieldExpirationDate,
	"issuing_authority": extraction.FieldIssuingAuthority,
	"nationality":       extraction.FieldNationality,
	"address":           extraction.FieldAddress,
}

func (a *AIProvider) Extract(ctx context.Context, image []byte, docType extraction.DocumentType) (*extraction.Result, error) {
	reqBody, err := json.Marshal(aiRequest{
		Image:        base64.StdEncoding.EncodeToString(image),
		DocumentType: string(docType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ai provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ai provider returned status %d", resp.StatusCode)
	}

	decoded, err := decodeAIResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	fields := make(map[extraction.Field]string)
	for name, value := range decoded.Fields {
		if field, ok := knownProviderFields[name]; ok && value != "" {
			fields[field] = value
		}
	}

	return &extraction.Result{
		Method:       a.Name(),
		RawData:      decoded.RawText,
		Confidence:   clamp01(decoded.Confidence),
		ParsedFields: fields,
		Status:       statusFor(fields),
	}, nil
}

// decodeAIResponse enforces the schema: unknown keys and out-of-range
// confidence are rejected rather than coerced.
func decodeAIResponse(r io.Reader) (*aiResponse, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var decoded aiResponse
	if err := dec.Decode(&decoded); err != nil {
		return nil, &extraction.SchemaError{Strategy: "ai_provider", Detail: err.Error()}
	}
	if decoded.Confidence < 0 || decoded.Confidence > 1 {
		return nil, &extraction.SchemaError{
			Strategy: "ai_provider",
			Detail:   fmt.Sprintf("confidence %v out of range [0,1]", decoded.Confidence),
		}
	}
	if decoded.Fields == nil {
		return nil, &extraction.SchemaError{Strategy: "ai_provider", Detail: "missing fields object"}
	}
	return &decoded, nil
}

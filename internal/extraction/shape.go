package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const shapeSchemaURL = "invoice-shape.json"

// ShapeChecker compares a Record with the layout of SchemaTemplate. Leaf
// values are not checked: the model may emit numbers, nulls or strings.
type ShapeChecker struct {
	schema *jsonschema.Schema
}

// NewShapeChecker compiles the invoice shape schema
func NewShapeChecker() (*ShapeChecker, error) {
	b, err := json.Marshal(buildShapeSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(shapeSchemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(shapeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &ShapeChecker{schema: schema}, nil
}

// Check returns one warning per shape violation, sorted. A nil result means
// the record has every field of the template.
func (s *ShapeChecker) Check(record *Record) []string {
	// Validate wants plain decoded JSON, not json.Number.
	var v any
	if err := json.Unmarshal([]byte(record.Canonical), &v); err != nil {
		return []string{fmt.Sprintf("unreadable record: %v", err)}
	}

	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	seen := make(map[string]struct{})
	collectLeafErrors(verr, seen)

	warnings := make([]string, 0, len(seen))
	for w := range seen {
		warnings = append(warnings, w)
	}
	sort.Strings(warnings)
	return warnings
}

func collectLeafErrors(verr *jsonschema.ValidationError, seen map[string]struct{}) {
	if len(verr.Causes) == 0 {
		location := verr.InstanceLocation
		if location == "" {
			location = "/"
		}
		seen[location+": "+verr.Message] = struct{}{}
		return
	}
	for _, cause := range verr.Causes {
		collectLeafErrors(cause, seen)
	}
}

func buildShapeSchema() map[string]any {
	address := object([]string{"street", "city", "postcode", "country"}, nil)
	party := object(
		[]string{"name", "vat_number", "address", "phone", "email"},
		map[string]any{"address": address},
	)
	item := object([]string{"description", "quantity", "unit_price", "total", "vat_rate"}, nil)

	return object(
		[]string{
			"invoice_number", "invoice_date", "due_date", "total_amount", "vat_amount",
			"client", "supplier", "items", "payment_details",
		},
		map[string]any{
			"client":   party,
			"supplier": party,
			"items": map[string]any{
				"type":  "array",
				"items": item,
			},
			"payment_details": object([]string{"bank_name", "iban", "swift_code"}, nil),
		},
	)
}

func object(required []string, props map[string]any) map[string]any {
	m := map[string]any{
		"type":     "object",
		"required": required,
	}
	if props != nil {
		m["properties"] = props
	}
	return m
}

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// DecodeContent turns a chat reply into out: scrub to the outermost JSON object,
// validate against schema, then unmarshal. With lenient set, a document that fails
// validation gets one CoerceScalars pass before giving up; the coerced field names
// are returned for logging.
func DecodeContent(content string, schema map[string]any, lenient bool, out any) ([]string, error) {
	doc := []byte(ExtractJSON(content))
	if len(doc) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	var coerced []string
	if err := ValidateJSONAgainstSchema(schema, doc); err != nil {
		if !lenient {
			return nil, err
		}
		fixed, changed, cErr := CoerceScalars(doc)
		if cErr != nil {
			return nil, fmt.Errorf("%w (coerce: %v)", err, cErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, fixed); vErr != nil {
			return changed, vErr
		}
		doc, coerced = fixed, changed
	}

	if err := json.Unmarshal(doc, out); err != nil {
		return coerced, fmt.Errorf("unmarshal content: %w", err)
	}
	return coerced, nil
}

package device

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// readingSchemaRef is the resource name the reading schema is compiled under.
const readingSchemaRef = "deviceserver://schemas/reading.json"

// readingSchemaJSON requires the four numeric sensor fields. Keys are
// matched after case normalisation, see canonicalReadingKeys.
const readingSchemaJSON = `{
  "type": "object",
  "required": ["deviceId", "humidity", "lightIntensity", "temperature"],
  "properties": {
    "deviceId":       {"type": "integer", "minimum": 0},
    "humidity":       {"type": "number"},
    "lightIntensity": {"type": "number"},
    "temperature":    {"type": "number"},
    "timestamp":      {"type": ["string", "null"]}
  }
}`

var readingFields = []string{"deviceId", "humidity", "lightIntensity", "temperature", "timestamp"}

var readingSchema = mustCompileSchema(readingSchemaRef, readingSchemaJSON)

func mustCompileSchema(ref, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(ref, bytes.NewReader([]byte(src))); err != nil {
		panic(fmt.Sprintf("device: adding schema %s: %v", ref, err))
	}
	s, err := c.Compile(ref)
	if err != nil {
		panic(fmt.Sprintf("device: compiling schema %s: %v", ref, err))
	}
	return s
}

// DecodeReading validates payload against the reading schema and decodes it.
//
// The returned reading is not stamped; callers apply Stamp so the
// timestamp precedence rule lives in one place.
//
// Returns:
//   - Reading: the decoded sample
//   - error: wrapping ErrInvalidReading when the payload is not a valid reading
func DecodeReading(payload []byte) (Reading, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Reading{}, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidReading)
	}

	if err := readingSchema.Validate(canonicalReadingKeys(obj)); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}

	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return r, nil
}

// canonicalReadingKeys renames keys that match a reading field ignoring
// case to the field's camelCase name. Other keys are kept as they are.
func canonicalReadingKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[canonicalField(k)] = v
	}
	return out
}

func canonicalField(key string) string {
	for _, f := range readingFields {
		if strings.EqualFold(key, f) {
			return f
		}
	}
	return key
}

// ParseReading decodes and stamps a reading received at now.
func ParseReading(payload []byte, now time.Time) (Reading, error) {
	r, err := DecodeReading(payload)
	if err != nil {
		return Reading{}, err
	}
	r.Stamp(now)
	return r, nil
}

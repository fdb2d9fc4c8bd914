package store

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema describes the persisted blob: a JSON array of notifications.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "message", "timestamp", "read"],
    "properties": {
      "id":        {"type": "string", "minLength": 1},
      "message":   {"type": "string", "minLength": 1},
      "timestamp": {"type": "string", "format": "date-time"},
      "read":      {"type": "boolean"}
    }
  }
}`

var compiledSchema = mustCompile(payloadSchema)

func mustCompile(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("store: invalid payload schema: %v", err))
	}
	return s
}

// validatePayload reports why b is not a persisted collection.
func validatePayload(b []byte) error {
	res, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
		if len(msgs) == 3 {
			break
		}
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

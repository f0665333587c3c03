package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// courseSchema constrains course documents delivered as JSON: node ids are
// required, difficulty is bounded to [0,1], durations are non-negative.
const courseSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "nodes"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "topic", "difficulty"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"topic": {"type": "string", "minLength": 1},
					"difficulty": {"type": "number", "minimum": 0, "maximum": 1},
					"duration_seconds": {"type": "integer", "minimum": 0},
					"prerequisites": {"type": "array", "items": {"type": "string"}},
					"styles": {"type": "array", "items": {"type": "string"}},
					"remedial": {"type": "boolean"}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(courseSchema)

// ParseCourseJSON validates a JSON course document against the course schema
// and decodes it. Structural problems are reported before any graph checks so
// malformed catalog payloads fail with a precise message.
func ParseCourseJSON(data []byte) (*Course, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validating course document: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid course document: %s", strings.Join(problems, "; "))
	}

	var course Course
	if err := json.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("decoding course document: %w", err)
	}
	return &course, nil
}

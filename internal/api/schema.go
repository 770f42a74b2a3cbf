package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

var (
	topicSchema = mustSchema(`{
		"type": "object",
		"required": ["subject_id", "name", "avg_minutes"],
		"properties": {
			"id":          {"type": "string"},
			"subject_id":  {"type": "string", "minLength": 1},
			"name":        {"type": "string"},
			"order":       {"type": "integer"},
			"avg_minutes": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`)

	slotSchema = mustSchema(`{
		"type": "object",
		"required": ["day", "start", "end", "subject_id"],
		"properties": {
			"day":        {"type": "integer", "minimum": 1, "maximum": 7},
			"start":      {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
			"end":        {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
			"subject_id": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)

	studySchema = mustSchema(`{
		"type": "object",
		"required": ["minutes"],
		"properties": {
			"minutes": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`)

	completeSchema = mustSchema(`{
		"type": "object",
		"required": ["done"],
		"properties": {
			"done": {"type": "boolean"}
		},
		"additionalProperties": false
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// validate checks body against schema and reports every violation.
func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", studyplan.ErrInvalidInput, strings.Join(msgs, "; "))
}

// Package schemas validates enrichment model output against embedded
// JSON Schemas before anything is persisted.
package schemas

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/scholarwatch/internal/types"
)

//go:embed *.schema.json
var schemaFiles embed.FS

// ValidationError reports schema violations with field paths.
type ValidationError struct {
	Task   types.TaskType
	Errors []FieldError
}

// FieldError is a single violation at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s output failed validation:", ve.Task)
	for _, err := range ve.Errors {
		fmt.Fprintf(&sb, " %s: %s;", err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// ValidateTaskOutput checks a model's JSON output against the schema
// for the given task.
func ValidateTaskOutput(task types.TaskType, jsonContent string) error {
	data, err := schemaFiles.ReadFile(string(task) + ".schema.json")
	if err != nil {
		return fmt.Errorf("no schema for task %s: %w", task, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(data),
		gojsonschema.NewStringLoader(jsonContent),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s output: %w", task, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Task: task, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}

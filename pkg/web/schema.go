package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// workflowSchema guards the workflow document shape before it is unmarshalled
// into the model. Struct validation alone cannot express the edge label enum
// on nested connection objects.
const workflowSchema = `{
  "type": "object",
  "required": ["name", "nodes"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 3},
    "function_name": {"type": "string"},
    "owner": {"type": "string"},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "channel"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "channel": {"type": "string", "enum": ["telegram", "whatsapp", "linkedin", "email", "voice_call"]},
          "max_wait_seconds": {"type": "integer", "minimum": 0},
          "scripts": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["campaign_id"],
              "properties": {
                "campaign_id": {"type": "string"},
                "script": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source_node_id", "target_node_id", "label"],
        "properties": {
          "id": {"type": "string"},
          "source_node_id": {"type": "string", "minLength": 1},
          "target_node_id": {"type": "string", "minLength": 1},
          "label": {"type": "string", "enum": ["yes", "no"]}
        }
      }
    }
  }
}`

// validateWorkflowDocument checks the raw request body against the workflow
// schema and returns a readable list of violations.
func validateWorkflowDocument(body []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(workflowSchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate workflow document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	return fmt.Errorf("invalid workflow document: %s", strings.Join(violations, "; "))
}

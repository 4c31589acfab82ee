package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// inboundSchemaRegistry compiles the JSON Schemas for each inbound message
// type once, lazily, the way the teacher's wsSchemaRegistry does for its
// request/method schemas.
type inboundSchemaRegistry struct {
	once    sync.Once
	initErr error
	schemas map[InboundType]*jsonschema.Schema
}

var inboundSchemas inboundSchemaRegistry

func initInboundSchemas() error {
	inboundSchemas.once.Do(func() {
		raw := map[InboundType]string{
			InboundUserInputSubmit: userInputSubmitSchema,
			InboundInlineComponent: inlineComponentResultSchema,
			InboundArtifactPatch:   artifactPatchSchema,
			InboundClientResume:    clientResumeSchema,
		}
		inboundSchemas.schemas = make(map[InboundType]*jsonschema.Schema, len(raw))
		for typ, schema := range raw {
			compiled, err := jsonschema.CompileString(string(typ), schema)
			if err != nil {
				inboundSchemas.initErr = err
				return
			}
			inboundSchemas.schemas[typ] = compiled
		}
	})
	return inboundSchemas.initErr
}

// ValidateInbound parses raw as an inboundPeek to find its Type, then
// validates the full payload against that type's schema. Returns the
// resolved InboundType on success.
func ValidateInbound(raw []byte) (InboundType, error) {
	if err := initInboundSchemas(); err != nil {
		return "", err
	}

	var peek inboundPeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return "", err
	}
	schema, ok := inboundSchemas.schemas[peek.Type]
	if !ok {
		return "", fmt.Errorf("unknown inbound message type %q", peek.Type)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	if err := schema.Validate(payload); err != nil {
		return "", err
	}
	return peek.Type, nil
}

const userInputSubmitSchema = `{
  "type": "object",
  "required": ["type", "chat_id", "request_id", "text"],
  "properties": {
    "type": { "const": "user.input.submit" },
    "chat_id": { "type": "string", "minLength": 1 },
    "request_id": { "type": "string", "minLength": 1 },
    "text": { "type": "string" },
    "last_client_seq": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": true
}`

const inlineComponentResultSchema = `{
  "type": "object",
  "required": ["type", "chat_id", "corr", "data"],
  "properties": {
    "type": { "const": "inline_component.result" },
    "chat_id": { "type": "string", "minLength": 1 },
    "corr": { "type": "string", "minLength": 1 },
    "data": { "type": "object" }
  },
  "additionalProperties": true
}`

const artifactPatchSchema = `{
  "type": "object",
  "required": ["type", "chat_id", "corr", "patch"],
  "properties": {
    "type": { "const": "artifact_patch" },
    "chat_id": { "type": "string", "minLength": 1 },
    "corr": { "type": "string", "minLength": 1 },
    "patch": { "type": "array" }
  },
  "additionalProperties": true
}`

const clientResumeSchema = `{
  "type": "object",
  "required": ["type", "chat_id"],
  "properties": {
    "type": { "const": "client.resume" },
    "chat_id": { "type": "string", "minLength": 1 },
    "lastClientIndex": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": true
}`

package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const snapshotSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title", "prices"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "category": {"type": "string"},
    "url": {"type": "string"},
    "outcomes": {"type": "array", "items": {"type": "string"}},
    "prices": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
    },
    "volume_24h": {"type": "number", "minimum": 0},
    "liquidity": {"type": "number", "minimum": 0},
    "traders": {"type": "integer", "minimum": 0},
    "time_remaining": {"type": "string"},
    "end_date": {"type": "string"},
    "description": {"type": "string"},
    "context": {"type": "string"}
  }
}`

var snapshotSchema = mustCompileSnapshotSchema()

func mustCompileSnapshotSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("snapshot.json")
}

// DecodeSnapshot validates raw against the snapshot schema and decodes it.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot json: %w", err)
	}
	if err := snapshotSchema.Validate(doc); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot schema: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

package room

import (
	"bytes"
	"embed"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"roomdex/internal/protocol"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	snapshotSchema = mustCompile("schemas/snapshot.schema.json")
	patchSchema    = mustCompile("schemas/patch.schema.json")
)

func mustCompile(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(err)
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return s
}

// CheckSnapshotDocument validates raw snapshot bytes against the document
// schema before any decoding runs.
func CheckSnapshotDocument(raw []byte) error {
	return checkDocument("snapshot", snapshotSchema, raw)
}

// CheckPatchDocument validates raw patch bytes against the patch schema.
// Unknown patch keys are rejected here.
func CheckPatchDocument(raw []byte) error {
	return checkDocument("patch", patchSchema, raw)
}

func checkDocument(op string, schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return protocol.NewIssueError(op,
			protocol.NewIssue(protocol.ErrSchema, "invalid JSON: %v", err))
	}
	if err := schema.Validate(v); err != nil {
		return protocol.NewIssueError(op,
			protocol.NewIssue(protocol.ErrSchema, "%v", err))
	}
	return nil
}

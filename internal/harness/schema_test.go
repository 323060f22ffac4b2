package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: smallest valid document
decks:
  A: {pages: 1}
peers:
  - name: alice
steps:
  - {op: create, peer: alice, task: A}
`

func TestValidateSchema_Valid(t *testing.T) {
	require.NoError(t, ValidateSchema([]byte(minimalScenario)))
}

func TestValidateSchema_Violations(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantPath string
	}{
		{
			name:     "unknown top-level field",
			doc:      minimalScenario + "flow: []\n",
			wantPath: "flow",
		},
		{
			name: "unknown peer field",
			doc: `
name: x
description: d
decks: {}
peers:
  - {name: alice, writable: true}
steps:
  - {op: flush}
`,
			wantPath: "writable",
		},
		{
			name: "zero pages",
			doc: `
name: x
description: d
decks:
  A: {pages: 0}
peers:
  - name: alice
steps:
  - {op: flush}
`,
			wantPath: "pages",
		},
		{
			name: "unknown op",
			doc: `
name: x
description: d
decks: {}
peers:
  - name: alice
steps:
  - {op: teleport}
`,
			wantPath: "op",
		},
		{
			name: "no steps",
			doc: `
name: x
description: d
decks: {}
peers:
  - name: alice
steps: []
`,
			wantPath: "steps",
		},
		{
			name: "missing description",
			doc: `
name: x
decks: {}
peers:
  - name: alice
steps:
  - {op: flush}
`,
			wantPath: "description",
		},
		{
			name: "bad delivery",
			doc: `
name: x
description: d
delivery: eventually
decks: {}
peers:
  - name: alice
steps:
  - {op: flush}
`,
			wantPath: "delivery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.doc))
			require.Error(t, err)

			var se *SchemaError
			require.True(t, errors.As(err, &se), "want *SchemaError, got %T: %v", err, err)
			assert.Contains(t, err.Error(), tt.wantPath)
		})
	}
}

func TestValidateSchema_EmptyDocument(t *testing.T) {
	err := ValidateSchema([]byte(""))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "empty document")
}

func TestValidateSchema_MalformedYAML(t *testing.T) {
	err := ValidateSchema([]byte("name: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_SchemaRunsFirst(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "flow: []\n"))
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderSchema = `{
	order_id: string
	total:    number & >=0
}
`

func newTestValidator(t *testing.T, schemas map[string]string) *Validator {
	t.Helper()
	dir := t.TempDir()
	for eventType, src := range schemas {
		require.NoError(t, os.WriteFile(filepath.Join(dir, eventType+".cue"), []byte(src), 0o644))
	}
	return New(dir)
}

func TestValidate_NoSchemaIsPermissive(t *testing.T) {
	v := newTestValidator(t, nil)
	assert.NoError(t, v.Validate("order.created", map[string]any{"anything": "goes"}))
}

func TestValidate_MissingDirIsPermissive(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, v.Validate("order.created", nil))
}

func TestValidate_ConformingPayload(t *testing.T) {
	v := newTestValidator(t, map[string]string{"order.created": orderSchema})
	err := v.Validate("order.created", map[string]any{
		"order_id": "ord-42",
		"total":    19.99,
	})
	assert.NoError(t, err)
}

func TestValidate_ViolatingPayload(t *testing.T) {
	v := newTestValidator(t, map[string]string{"order.created": orderSchema})

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"wrong type", map[string]any{"order_id": 42, "total": 1.0}},
		{"constraint violated", map[string]any{"order_id": "ord-1", "total": -5.0}},
		{"missing field", map[string]any{"order_id": "ord-1"}},
		{"nil payload", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate("order.created", tt.payload)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "order.created", ve.EventType)
			assert.NotEmpty(t, ve.Detail)
		})
	}
}

func TestValidate_OnlyNamedTypeIsChecked(t *testing.T) {
	v := newTestValidator(t, map[string]string{"order.created": orderSchema})
	// Other event types have no schema file and pass untouched.
	assert.NoError(t, v.Validate("order.shipped", map[string]any{"total": "not a number"}))
}

func TestValidate_BrokenSchemaIsAnEngineError(t *testing.T) {
	v := newTestValidator(t, map[string]string{"order.created": "order_id: string &"})
	err := v.Validate("order.created", map[string]any{"order_id": "x"})
	require.Error(t, err)
	assert.False(t, IsValidation(err), "a broken schema file is not a caller error")
}

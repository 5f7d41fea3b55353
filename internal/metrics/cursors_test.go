package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateCursors(t *testing.T) {
	payload := []byte(`{"cursors":[
		{"id":" HORIZON ","cursor":1234},
		null,
		{"id":"NOPOS"},
		{"id":"ANALYTICS","cursor":99}
	]}`)
	tr := NewTranslator(TranslatorOptions{})
	reg := NewRegistry(LabelSet{{Key: LabelNetwork, Value: "test"}})

	require.NoError(t, tr.TranslateCursors(payload, reg))

	records := reg.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "stellar_core_active_cursors", records[0].Name)
	assert.Equal(t, 1234.0, records[0].Value)
	id, _ := records[0].Labels.Get("cursor_name")
	assert.Equal(t, "HORIZON", id)
	id, _ = records[1].Labels.Get("cursor_name")
	assert.Equal(t, "ANALYTICS", id)
	assert.Equal(t, "Stellar core active cursors", records[1].Help)
}

func TestTranslateCursors_EmptyList(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})
	reg := NewRegistry(nil)

	require.NoError(t, tr.TranslateCursors([]byte(`{"cursors":[]}`), reg))
	assert.Zero(t, reg.Len())
}

func TestTranslateCursors_ShapeErrors(t *testing.T) {
	tr := NewTranslator(TranslatorOptions{})

	for _, payload := range []string{`<html>`, `{"status":"ok"}`} {
		err := tr.TranslateCursors([]byte(payload), NewRegistry(nil))
		var shapeErr *ShapeError
		require.True(t, errors.As(err, &shapeErr), payload)
	}
}

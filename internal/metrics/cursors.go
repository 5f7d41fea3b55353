package metrics

import (
	"strings"

	"github.com/tidwall/gjson"
)

// TranslateCursors exports one gauge per active cursor from a /getcursor payload.
// Params: payload raw /getcursor JSON body; reg request registry.
// Returns: ShapeError when the payload is not JSON or has no cursors list.
func (t *Translator) TranslateCursors(payload []byte, reg *Registry) error {
	if !gjson.ValidBytes(payload) {
		return &ShapeError{Subject: "cursors", Reason: "invalid JSON"}
	}
	cursors := gjson.GetBytes(payload, "cursors")
	if !cursors.Exists() {
		return &ShapeError{Subject: "cursors", Reason: "missing cursors list"}
	}

	name := t.SeriesName("active_cursors")
	for _, cursor := range cursors.Array() {
		if !truthy(cursor) {
			continue
		}
		value, ok := numeric(cursor.Get("cursor"))
		if !ok {
			t.logger.Debug("cursor without position", "cursor", cursor.Raw)
			continue
		}
		cursorName := strings.TrimSpace(cursor.Get("id").String())
		reg.Gauge(name, "Stellar core active cursors", value, Label{Key: "cursor_name", Value: cursorName})
	}
	return nil
}

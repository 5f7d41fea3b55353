package metrics

import "fmt"

// UnsupportedUnitError reports a duration unit tag outside d,h,m,s,ms,us,ns.
type UnsupportedUnitError struct {
	Unit string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported duration unit %q", e.Unit)
}

// ShapeError reports a snapshot that lacks fields required by the phase or metric being translated.
// Params: Subject names the snapshot or metric; Reason describes the missing/invalid part.
// Returns: error value classified by the HTTP layer as a parse failure.
type ShapeError struct {
	Subject string
	Reason  string
}

func (e *ShapeError) Error() string {
	if e.Subject == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Reason)
}

// shapeErrorf builds a ShapeError with formatted reason.
func shapeErrorf(subject string, format string, args ...any) *ShapeError {
	return &ShapeError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

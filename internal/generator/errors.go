package generator

import (
	"errors"
	"fmt"
)

// ErrNoInterpretorMatched means no interpretor accepted a CEL group. This
// is a defect in the interpretor list, not bad input, so it aborts the
// whole batch.
var ErrNoInterpretorMatched = errors.New("no interpretor matched CEL group")

// InvalidCallLogError is returned by RawCallLog.ToCallLog when a mandatory
// field is missing. The affected group is skipped; the batch proceeds.
type InvalidCallLogError struct {
	Reason string
}

func (e *InvalidCallLogError) Error() string {
	return fmt.Sprintf("invalid call log: %s", e.Reason)
}

// IsInvalidCallLog reports whether err is an InvalidCallLogError.
func IsInvalidCallLog(err error) bool {
	var ice *InvalidCallLogError
	return errors.As(err, &ice)
}

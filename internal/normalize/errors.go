package normalize

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/statement-agent/constants"
)

// ErrNormalization is matched by every *NormalizationError.
var ErrNormalization = errors.New("normalization failed")

// NormalizationError reports a single raw field that could not be coerced
// to its typed value.
type NormalizationError struct {
	Reason  string
	RawText string
	Role    constants.Role
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s %q: %s", e.Role, e.RawText, e.Reason)
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalization
}

func failf(raw string, role constants.Role, format string, args ...any) error {
	return &NormalizationError{Reason: fmt.Sprintf(format, args...), RawText: raw, Role: role}
}

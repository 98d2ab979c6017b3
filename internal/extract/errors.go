package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction is matched by every *ExtractionError.
var ErrExtraction = errors.New("extraction failed")

// ExtractionError means neither strategy produced a usable row.
type ExtractionError struct {
	Reason  string
	Skipped []SkippedRow
}

func (e *ExtractionError) Error() string {
	if len(e.Skipped) == 0 {
		return "extract: " + e.Reason
	}
	return fmt.Sprintf("extract: %s (%d rows skipped, first: %s)", e.Reason, len(e.Skipped), e.Skipped[0])
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// SkippedRow records a candidate row dropped because a field did not
// normalize or no segmenter matched it.
type SkippedRow struct {
	Strategy Strategy
	Page     int
	Row      int // row within the block, or line within the page (1-based)
	Raw      string
	Reason   string
}

func (s SkippedRow) String() string {
	return fmt.Sprintf("%s p%d r%d %q: %s", s.Strategy, s.Page, s.Row, s.Raw, s.Reason)
}

package match

import (
	"errors"
	"fmt"
)

// ErrInvalidThreshold is returned when the threshold lies outside [0,1]
var ErrInvalidThreshold = errors.New("threshold must be within [0,1]")

// MismatchedArityError reports left and right field lists of different length
type MismatchedArityError struct {
	Left, Right int
}

func (e *MismatchedArityError) Error() string {
	return fmt.Sprintf("match fields differ in length: %d left vs %d right", e.Left, e.Right)
}

// EmptyBlockError reports that blocking produced no candidate pairs at all,
// which usually means the blocking keys do not line up
type EmptyBlockError struct {
	LeftBlock, RightBlock []string
}

func (e *EmptyBlockError) Error() string {
	return fmt.Sprintf("blocking on %v/%v produced no candidate pairs", e.LeftBlock, e.RightBlock)
}

// UnknownMethodError reports an unsupported similarity method name
type UnknownMethodError struct {
	Name string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown similarity method %q", e.Name)
}

// MissingColumnError reports a block, match or projection column absent from its table
type MissingColumnError struct {
	Side   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s table has no column %q", e.Side, e.Column)
}

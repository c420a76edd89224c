package catalog

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every catalog load failure.
var ErrUnavailable = errors.New("catalog unavailable")

// UnavailableError describes why a catalog could not be loaded.
// Empty is set when the source was readable but held no questions.
type UnavailableError struct {
	Source string
	Empty  bool
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Empty {
		return fmt.Sprintf("catalog %s: no questions", e.Source)
	}
	return fmt.Sprintf("catalog %s: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// IsEmpty reports whether err is an UnavailableError for an empty catalog.
func IsEmpty(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Empty
}

func unavailable(source string, err error) error {
	return &UnavailableError{Source: source, Err: err}
}

package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is matched by *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrInvalidLength is matched by *InvalidLengthError.
	ErrInvalidLength = errors.New("invalid generation length")

	ErrNegativeOrder = errors.New("order must not be negative")
	ErrSeedLength    = errors.New("seed length does not match model order")
	ErrNilModel      = errors.New("nil model")
	ErrNilRand       = errors.New("nil random source")
)

// InsufficientDataError is returned by Build when the training sequence is
// too short for the requested order: at least order+1 notes are needed for
// a single context to be followed by a successor.
type InsufficientDataError struct {
	Order  int
	Length int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: order %d needs at least %d notes, got %d",
		e.Order, e.Order+1, e.Length)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// InvalidLengthError is returned when the requested output is shorter than
// the seed context.
type InvalidLengthError struct {
	Length int
	Order  int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid generation length %d: must be at least the model order %d",
		e.Length, e.Order)
}

func (e *InvalidLengthError) Is(target error) bool {
	return target == ErrInvalidLength
}

package service

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// PropagationError reports a record store change that was committed but
// could not be applied to the search index. The record is durable; the
// index is stale for ProductID until a reconcile or rebuild repairs it.
type PropagationError struct {
	Operation string
	ProductID string
	Err       error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("product %s %s: search index not updated: %v", e.ProductID, e.Operation, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}

// Warning is the user-facing description of the stale index.
func (e *PropagationError) Warning() string {
	return fmt.Sprintf("product %s was saved but the search index could not be updated; search results may be stale until it is reindexed", e.ProductID)
}

// IsPropagationError reports whether err is, or wraps, a PropagationError.
func IsPropagationError(err error) (*PropagationError, bool) {
	var perr *PropagationError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

func newPropagationError(op, id string, err error) *PropagationError {
	if !errors.Is(err, apperrors.ErrIndexUnavailable) {
		err = apperrors.IndexUnavailable(op+" propagation", err)
	}
	return &PropagationError{Operation: op, ProductID: id, Err: err}
}

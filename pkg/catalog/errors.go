package catalog

import "errors"

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("not found")

// Entity kinds reported by NotFoundError.
const (
	KindMarket   = "Market"
	KindCategory = "Category"
	KindSection  = "Section"
)

// NotFoundError reports a missing market, category or section.
type NotFoundError struct {
	Kind string
}

// NotFound returns a NotFoundError for kind.
func NotFound(kind string) error {
	return &NotFoundError{Kind: kind}
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found"
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

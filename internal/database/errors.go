package database

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrNotNull         = errors.New("not null constraint failed")
	ErrCheckConstraint = errors.New("check constraint failed")
)

// ConstraintError describes a failed SQLite constraint. Cause is one of the
// sentinel errors above, so callers can use errors.Is.
type ConstraintError struct {
	Type    string
	Table   string
	Column  string
	Message string
	Cause   error
}

func (e *ConstraintError) Error() string {
	return e.Message
}

func (e *ConstraintError) Unwrap() error {
	return e.Cause
}

var (
	uniquePattern = regexp.MustCompile(`UNIQUE constraint failed: ([^\s]+)`)
	notNullRegex  = regexp.MustCompile(`NOT NULL constraint failed: ([^\s]+)`)
	checkRegex    = regexp.MustCompile(`CHECK constraint failed`)
)

// ClassifyError converts driver constraint failures into *ConstraintError.
// Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	if matches := uniquePattern.FindStringSubmatch(msg); len(matches) == 2 {
		ce := &ConstraintError{
			Type:    "unique",
			Cause:   ErrUniqueViolation,
			Message: "A record with this value already exists",
		}
		ce.Table, ce.Column = splitColumn(matches[1])
		if ce.Column != "" {
			ce.Message = "A record with this '" + ce.Column + "' already exists"
		}
		return ce
	}

	if matches := notNullRegex.FindStringSubmatch(msg); len(matches) == 2 {
		ce := &ConstraintError{
			Type:    "not_null",
			Cause:   ErrNotNull,
			Message: "Required field is missing",
		}
		ce.Table, ce.Column = splitColumn(matches[1])
		if ce.Column != "" {
			ce.Message = "Field '" + ce.Column + "' is required"
		}
		return ce
	}

	if checkRegex.MatchString(msg) {
		return &ConstraintError{
			Type:    "check",
			Cause:   ErrCheckConstraint,
			Message: "Value does not meet requirements",
		}
	}

	return err
}

func splitColumn(qualified string) (table, column string) {
	table, column, ok := strings.Cut(qualified, ".")
	if !ok {
		return "", ""
	}
	return table, column
}

func IsUniqueError(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

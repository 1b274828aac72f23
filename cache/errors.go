package cache

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the errors this module returns. Cache operations
// themselves never fail; these cover configuration, entity registration and
// reflective construction.
const (
	TextCodeInvalidConfig     = "INVALID_CONFIG"
	TextCodeInvalidEntity     = "INVALID_ENTITY"
	TextCodeMissingPrimaryKey = "MISSING_PRIMARY_KEY"
	TextCodeRetentionConflict = "RETENTION_CONFLICT"
	TextCodeConstructArgs     = "CONSTRUCT_ARGS"
	TextCodeNoScope           = "NO_SCOPE"
	TextCodeNotRegistered     = "NOT_REGISTERED"
)

func errInvalidEntity(typeName, reason string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s cannot be used as an entity: %s", typeName, reason), goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidEntity).
		WithMetadata(map[string]any{"type": typeName})
}

func errMissingPrimaryKey(typeName string) *goerrors.Error {
	return goerrors.New(typeName+" has no primary key field", goerrors.CategoryBadInput).
		WithTextCode(TextCodeMissingPrimaryKey).
		WithMetadata(map[string]any{"type": typeName})
}

func errRetentionConflict(typeName string, have, want Retention) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("%s already registered with %s retention", typeName, have), goerrors.CategoryConflict).
		WithTextCode(TextCodeRetentionConflict).
		WithMetadata(map[string]any{"type": typeName, "registered": have.String(), "requested": want.String()})
}

func errConstructArgs(typeName, message string) *goerrors.Error {
	return goerrors.New(typeName+": "+message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeConstructArgs).
		WithMetadata(map[string]any{"type": typeName})
}

// ErrInvalidEntity reports a type that cannot be used as an entity.
func ErrInvalidEntity(typeName, reason string) error {
	return errInvalidEntity(typeName, reason)
}

// ErrNotRegistered reports that a type has no descriptor in the registry.
func ErrNotRegistered(typeName string) error {
	return goerrors.New(typeName+" is not a registered entity", goerrors.CategoryNotFound).
		WithTextCode(TextCodeNotRegistered).
		WithMetadata(map[string]any{"type": typeName})
}

// ErrNoScope reports a call that needs an identity map scope and got none.
func ErrNoScope() error {
	return goerrors.New("no identity map scope available", goerrors.CategoryOperation).
		WithTextCode(TextCodeNoScope)
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}

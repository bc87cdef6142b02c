package content

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptContent reports a blob that is not JSON, is truncated, or
	// lacks required structure.
	ErrCorruptContent = errors.New("corrupt content")
	// ErrUnknownVersion reports a node or document version, or a node type,
	// that this implementation does not understand.
	ErrUnknownVersion = errors.New("unknown content version")
	// ErrNotRegistered reports a node type used before it was registered.
	ErrNotRegistered = errors.New("node type not registered")

	ErrNodeNotFound = errors.New("node not found")
	ErrInvalidChild = errors.New("invalid child")
	ErrWrongType    = errors.New("unexpected node type")
)

// ConfigError is a setup-time programming error: a node type or its
// companion plugin is missing. It must halt setup.
type ConfigError struct {
	Type   NodeType
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("content: configuration error for %q: %s", e.Type, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrNotRegistered }

func wrongType(key NodeKey, want, got NodeType) error {
	return fmt.Errorf("%w: node %s is %s, want %s", ErrWrongType, key, got, want)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptContent, fmt.Sprintf(format, args...))
}

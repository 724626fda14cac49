package proxyscan

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is matched by every ConfigParseError.
var ErrInvalidFormat = errors.New("invalid format")

// ConfigParseError reports an environment variable whose value cannot be
// converted to the type of its field.
type ConfigParseError struct {
	// Var is the environment variable name
	Var string
	// Value is the rejected value
	Value string
	// Err is the underlying conversion error
	Err error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("config: %s=%q: %v: %v", e.Var, e.Value, ErrInvalidFormat, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInvalidFormat.
func (e *ConfigParseError) Is(target error) bool {
	return target == ErrInvalidFormat
}

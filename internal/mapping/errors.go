package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports invalid mapping configuration. It is fatal for the
// single resolution that hit it, never for a whole reconciliation pass.
type ConfigError struct {
	Resource string
	Item     string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("mapping config: resource %s item %s: %s", e.Resource, e.Item, e.Message)
	}
	return fmt.Sprintf("mapping config: resource %s: %s", e.Resource, e.Message)
}

// RequiredValuesError reports attributes whose mandatory condition held but
// which resolved to no value. Attributes lists the offending internal names.
type RequiredValuesError struct {
	Resource   string
	Attributes []string
}

// Error implements the error interface.
func (e *RequiredValuesError) Error() string {
	return fmt.Sprintf("required values missing on %s: %s",
		e.Resource, strings.Join(e.Attributes, ", "))
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsRequiredValues reports whether err is (or wraps) a RequiredValuesError.
func IsRequiredValues(err error) bool {
	var re *RequiredValuesError
	return errors.As(err, &re)
}

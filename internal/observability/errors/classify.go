// Package errors provides error classification helpers for observability.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"
)

// Classify returns a normalized error type name suitable for tagging metrics
// and logs. It unwraps to the innermost concrete type and converts it to a
// lower-case dotted name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "error"
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}
	name = strings.TrimPrefix(name, "*")
	return strings.ToLower(strings.ReplaceAll(name, ".", "_"))
}

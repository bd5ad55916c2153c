// Package check implements declarative validation for configuration structs. Types
// implement Validatable to describe their own invariants with the comparison helpers
// below; Validate walks a value and aggregates every failure it finds.
package check

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

func message(fallback string, msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 1:
		if msg, ok := msgAndArgs[0].(string); ok {
			return msg
		}
		return fmt.Sprintf("%+v", msgAndArgs[0])
	case len(msgAndArgs) > 1:
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	default:
		return fallback
	}
}

// True returns an error unless the condition holds.
func True(condition bool, msgAndArgs ...interface{}) error {
	if condition {
		return nil
	}
	return errors.New(message("expected condition to hold", msgAndArgs...))
}

// Equal returns an error unless actual == expected.
func Equal[T comparable](actual, expected T, msgAndArgs ...interface{}) error {
	if actual == expected {
		return nil
	}
	return errors.Errorf("%s: %v != %v",
		message("expected values to be equal", msgAndArgs...), actual, expected)
}

// GreaterThan returns an error unless actual > expected.
func GreaterThan[T constraints.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	if actual > expected {
		return nil
	}
	return errors.Errorf("%s: %v <= %v",
		message("expected value to be greater", msgAndArgs...), actual, expected)
}

// GreaterThanOrEqualTo returns an error unless actual >= expected.
func GreaterThanOrEqualTo[T constraints.Ordered](
	actual, expected T, msgAndArgs ...interface{},
) error {
	if actual >= expected {
		return nil
	}
	return errors.Errorf("%s: %v < %v",
		message("expected value to be greater or equal", msgAndArgs...), actual, expected)
}

// LessThanOrEqualTo returns an error unless actual <= expected.
func LessThanOrEqualTo[T constraints.Ordered](actual, expected T, msgAndArgs ...interface{}) error {
	if actual <= expected {
		return nil
	}
	return errors.Errorf("%s: %v > %v",
		message("expected value to be less or equal", msgAndArgs...), actual, expected)
}

// Between returns an error unless low <= actual <= high.
func Between[T constraints.Ordered](actual, low, high T, msgAndArgs ...interface{}) error {
	if low <= actual && actual <= high {
		return nil
	}
	return errors.Errorf("%s: %v is not in [%v, %v]",
		message("expected value to be in range", msgAndArgs...), actual, low, high)
}

// NotEmpty returns an error if the provided string, slice, or map has no elements.
func NotEmpty(actual interface{}, msgAndArgs ...interface{}) error {
	msg := message("expected non-empty value", msgAndArgs...)
	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		if v.Len() == 0 {
			return errors.New(msg)
		}
		return nil
	default:
		return errors.Errorf("%s: cannot check emptiness of %T", msg, actual)
	}
}

// In returns an error unless actual matches one of the allowed values.
func In(actual string, allowed []string, msgAndArgs ...interface{}) error {
	for _, value := range allowed {
		if actual == value {
			return nil
		}
	}
	return errors.Errorf("%s: %q not in [%s]",
		message("expected value to be allowed", msgAndArgs...),
		actual, strings.Join(allowed, ", "))
}

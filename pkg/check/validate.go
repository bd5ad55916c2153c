package check

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validatable is implemented by anything whose fields carry invariants. Validate returns
// one error per violated invariant; nil entries are ignored.
type Validatable interface {
	Validate() []error
}

// Validate recursively walks the provided value and collects the errors of every
// Validatable it encounters, wrapping each with its location in the structure. It
// returns nil when nothing is violated.
func Validate(v interface{}) error {
	errs := walk(reflect.ValueOf(v), "config")
	if len(errs) == 0 {
		return nil
	}
	result := &multierror.Error{}
	for _, err := range errs {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func walk(v reflect.Value, path string) []error {
	var errs []error
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		errs = append(errs, walk(v.Elem(), path)...)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			errs = append(errs, walk(v.Index(i), fmt.Sprintf("%s[%d]", path, i))...)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			errs = append(errs, walk(v.MapIndex(key),
				fmt.Sprintf("%s[%v]", path, key.Interface()))...)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			errs = append(errs, walk(v.Field(i),
				fmt.Sprintf("%s.%s", path, v.Type().Field(i).Name))...)
		}
	}

	if v.Kind() != reflect.Ptr && v.CanInterface() {
		// Validate methods may hang off either value or pointer receivers.
		var validatable Validatable
		if vl, ok := v.Interface().(Validatable); ok {
			validatable = vl
		} else if v.CanAddr() {
			if vl, ok := v.Addr().Interface().(Validatable); ok {
				validatable = vl
			}
		} else {
			vp := reflect.New(v.Type())
			vp.Elem().Set(v)
			if vl, ok := vp.Interface().(Validatable); ok {
				validatable = vl
			}
		}
		if validatable != nil {
			for _, err := range validatable.Validate() {
				if err != nil {
					errs = append(errs, errors.Wrapf(err, "%s", path))
				}
			}
		}
	}
	return errs
}

// Package union marshals and unmarshals Go sum types. A union type is a struct with one
// pointer field per member, each tagged `union:"<key>,<value>"`; exactly one member is
// non-nil at a time. The JSON form is the member's own object with the discriminator
// stored under <key>, plus any plain json-tagged fields of the wrapper itself.
package union

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

const unionTag = "union"

type member struct {
	index int
	value string
}

// members maps discriminator key -> tag value -> struct field, for one union type.
func parseMembers(t reflect.Type) (string, map[string]member, error) {
	key := ""
	out := make(map[string]member)
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup(unionTag)
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		if len(parts) != 2 {
			return "", nil, errors.Errorf("malformed union tag on %s.%s: %q",
				t.Name(), t.Field(i).Name, tag)
		}
		if key != "" && key != parts[0] {
			return "", nil, errors.Errorf("conflicting union keys on %s: %q and %q",
				t.Name(), key, parts[0])
		}
		key = parts[0]
		if t.Field(i).Type.Kind() != reflect.Ptr {
			return "", nil, errors.Errorf("union member %s.%s must be a pointer",
				t.Name(), t.Field(i).Name)
		}
		out[parts[1]] = member{index: i, value: parts[1]}
	}
	if key == "" {
		return "", nil, errors.Errorf("%s has no union-tagged fields", t.Name())
	}
	return key, out, nil
}

// Marshal encodes a union value. Exactly one member must be non-nil.
func Marshal(v interface{}) ([]byte, error) {
	value := reflect.Indirect(reflect.ValueOf(v))
	key, members, err := parseMembers(value.Type())
	if err != nil {
		return nil, err
	}

	activeValue := ""
	var active reflect.Value
	for tagValue, m := range members {
		field := value.Field(m.index)
		if field.IsNil() {
			continue
		}
		if activeValue != "" {
			return nil, errors.Errorf("%s has multiple members set: %q and %q",
				value.Type().Name(), activeValue, tagValue)
		}
		activeValue, active = tagValue, field
	}
	if activeValue == "" {
		return nil, errors.Errorf("%s has no member set", value.Type().Name())
	}

	// Plain fields of the wrapper first, so member fields win on collision.
	merged := make(map[string]json.RawMessage)
	base, err := json.Marshal(struct2plain(value))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	memberJSON, err := json.Marshal(active.Interface())
	if err != nil {
		return nil, err
	}
	var memberFields map[string]json.RawMessage
	if err := json.Unmarshal(memberJSON, &memberFields); err != nil {
		return nil, err
	}
	for name, raw := range memberFields {
		merged[name] = raw
	}

	tagged, err := json.Marshal(activeValue)
	if err != nil {
		return nil, err
	}
	merged[key] = tagged
	return json.Marshal(merged)
}

// struct2plain copies v into an any-typed map-friendly form that omits union members;
// plain fields keep their own json tags by round-tripping through a synthetic struct.
func struct2plain(v reflect.Value) interface{} {
	t := v.Type()
	var fields []reflect.StructField
	var values []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if _, isUnion := f.Tag.Lookup(unionTag); isUnion {
			continue
		}
		if !v.Field(i).CanInterface() {
			continue
		}
		f.Index = []int{len(fields)}
		f.Anonymous = false
		fields = append(fields, f)
		values = append(values, v.Field(i))
	}
	out := reflect.New(reflect.StructOf(fields)).Elem()
	for i, value := range values {
		out.Field(i).Set(value)
	}
	return out.Interface()
}

// Unmarshal decodes a union value: the discriminator in data selects the member to
// allocate and fill; all other members are zeroed. Wrapper-level plain fields are left
// to the caller (decode them with a separate json.Unmarshal, as the config types do).
func Unmarshal(data []byte, v interface{}) error {
	value := reflect.ValueOf(v)
	if value.Kind() != reflect.Ptr || value.IsNil() {
		return errors.New("union.Unmarshal requires a non-nil pointer")
	}
	elem := value.Elem()
	key, members, err := parseMembers(elem.Type())
	if err != nil {
		return err
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return errors.Wrap(err, "union value is not a JSON object")
	}
	rawTag, ok := parsed[key]
	if !ok {
		return errors.Errorf("missing %q field in %s", key, elem.Type().Name())
	}
	var tagValue string
	if err := json.Unmarshal(rawTag, &tagValue); err != nil {
		return errors.Wrapf(err, "%q field must be a string", key)
	}

	m, ok := members[tagValue]
	if !ok {
		return errors.Errorf("unknown %s %q", key, tagValue)
	}
	field := elem.Field(m.index)
	nested := reflect.New(field.Type().Elem())
	if err := json.Unmarshal(data, nested.Interface()); err != nil {
		return err
	}
	field.Set(nested)
	for _, other := range members {
		if other.index != m.index {
			elem.Field(other.index).Set(reflect.Zero(elem.Type().Field(other.index).Type))
		}
	}
	return nil
}

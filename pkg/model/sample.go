package model

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// HParamSample is one sampled configuration: hyperparameter name to concrete value.
// Nested hyperparameters appear as nested map[string]interface{} values.
type HParamSample map[string]interface{}

// Decode fills out with the sample's values, matching struct fields by their json tags.
func (s HParamSample) Decode(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "building sample decoder")
	}
	return errors.Wrap(decoder.Decode(map[string]interface{}(s)), "decoding hyperparameter sample")
}

// Float64 returns the named value as a float64. Integer-typed values convert.
func (s HParamSample) Float64(name string) (float64, error) {
	v, ok := s[name]
	if !ok {
		return 0, errors.Errorf("hyperparameter %q not in sample", name)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, errors.Errorf("hyperparameter %q is %T, not numeric", name, v)
	}
}

// Int returns the named value as an int. A float value must be integral.
func (s HParamSample) Int(name string) (int, error) {
	v, ok := s[name]
	if !ok {
		return 0, errors.Errorf("hyperparameter %q not in sample", name)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, errors.Errorf("hyperparameter %q is %v, not integral", name, x)
		}
		return int(x), nil
	default:
		return 0, errors.Errorf("hyperparameter %q is %T, not an int", name, v)
	}
}

// String returns the named value as a string.
func (s HParamSample) String(name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", errors.Errorf("hyperparameter %q not in sample", name)
	}
	x, ok := v.(string)
	if !ok {
		return "", errors.Errorf("hyperparameter %q is %T, not a string", name, v)
	}
	return x, nil
}

package model

import (
	"encoding/json"
	"sort"

	"github.com/edoakes/tunekit/pkg/check"
	"github.com/edoakes/tunekit/pkg/union"
)

// Hyperparameters holds a mapping from hyperparameter name to its configuration.
type Hyperparameters map[string]Hyperparameter

// Each applies the function to each hyperparameter in string order of the name.
func (h Hyperparameters) Each(f func(name string, param Hyperparameter)) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f(k, h[k])
	}
}

// Hyperparameter is a sum type over the supported hyperparameter kinds.
type Hyperparameter struct {
	ConstHyperparameter       *ConstHyperparameter       `union:"type,const" json:"-"`
	IntHyperparameter         *IntHyperparameter         `union:"type,int" json:"-"`
	DoubleHyperparameter      *DoubleHyperparameter      `union:"type,double" json:"-"`
	LogHyperparameter         *LogHyperparameter         `union:"type,log" json:"-"`
	CategoricalHyperparameter *CategoricalHyperparameter `union:"type,categorical" json:"-"`
	NestedHyperparameter      *NestedHyperparameter      `union:"type,nested" json:"-"`
}

// MarshalJSON implements the json.Marshaler interface.
func (h Hyperparameter) MarshalJSON() ([]byte, error) {
	return union.Marshal(h)
}

// UnmarshalJSON implements the json.Unmarshaler interface. A bare JSON scalar or array
// is shorthand for a const hyperparameter with that value.
func (h *Hyperparameter) UnmarshalJSON(data []byte) error {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if _, ok := parsed.(map[string]interface{}); ok {
		return union.Unmarshal(data, h)
	}
	h.ConstHyperparameter = &ConstHyperparameter{Val: parsed}
	return nil
}

// ConstHyperparameter is a constant.
type ConstHyperparameter struct {
	Val interface{} `json:"val"`
}

// IntHyperparameter is an interval of ints. Count, when set, gives the number of grid
// points a grid search lays across the interval.
type IntHyperparameter struct {
	Minval int  `json:"minval"`
	Maxval int  `json:"maxval"`
	Count  *int `json:"count,omitempty"`
}

// Validate implements the check.Validatable interface.
func (p IntHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(p.Maxval, p.Minval, "maxval must be greater than minval"),
	}
	if p.Count != nil {
		errs = append(errs, check.GreaterThan(*p.Count, 0, "count must be > 0"))
	}
	return errs
}

// DoubleHyperparameter is an interval of float64s.
type DoubleHyperparameter struct {
	Minval float64 `json:"minval"`
	Maxval float64 `json:"maxval"`
	Count  *int    `json:"count,omitempty"`
}

// Validate implements the check.Validatable interface.
func (p DoubleHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(p.Maxval, p.Minval, "maxval must be greater than minval"),
	}
	if p.Count != nil {
		errs = append(errs, check.GreaterThan(*p.Count, 0, "count must be > 0"))
	}
	return errs
}

// LogHyperparameter is a log-uniformly distributed interval of float64s: the sampled
// value is base raised to a uniform exponent in [minval, maxval].
type LogHyperparameter struct {
	Minval float64 `json:"minval"`
	Maxval float64 `json:"maxval"`
	Base   float64 `json:"base"`
	Count  *int    `json:"count,omitempty"`
}

// Validate implements the check.Validatable interface.
func (p LogHyperparameter) Validate() []error {
	errs := []error{
		check.GreaterThan(p.Maxval, p.Minval, "maxval must be greater than minval"),
		check.GreaterThan(p.Base, 0.0, "base must be > 0"),
	}
	if p.Count != nil {
		errs = append(errs, check.GreaterThan(*p.Count, 0, "count must be > 0"))
	}
	return errs
}

// CategoricalHyperparameter is a finite set of values to choose among.
type CategoricalHyperparameter struct {
	Vals []interface{} `json:"vals"`
}

// Validate implements the check.Validatable interface.
func (p CategoricalHyperparameter) Validate() []error {
	return []error{
		check.GreaterThan(len(p.Vals), 0, "must have at least one category"),
	}
}

// NestedHyperparameter is a sub-space of hyperparameters sampled as a unit.
type NestedHyperparameter struct {
	Vals Hyperparameters `json:"vals"`
}

// Validate implements the check.Validatable interface.
func (p NestedHyperparameter) Validate() []error {
	return []error{
		check.GreaterThan(len(p.Vals), 0, "nested hyperparameter must not be empty"),
	}
}

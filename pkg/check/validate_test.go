package check

import (
	"strings"
	"testing"

	"gotest.tools/assert"
)

type bounds struct {
	Low  int
	High int
}

func (b bounds) Validate() []error {
	return []error{
		GreaterThan(b.High, b.Low, "low must be below high"),
	}
}

type experiment struct {
	Name   string
	Slots  int
	Bounds []bounds
	Extra  *bounds
}

func (e *experiment) Validate() []error {
	return []error{
		NotEmpty(e.Name, "name must be set"),
		GreaterThan(e.Slots, 0, "slots must be positive"),
	}
}

func TestValidateOK(t *testing.T) {
	e := experiment{
		Name:   "ok",
		Slots:  2,
		Bounds: []bounds{{Low: 0, High: 3}},
		Extra:  &bounds{Low: -1, High: 1},
	}
	assert.NilError(t, Validate(e))
}

func TestValidateCollectsNestedErrors(t *testing.T) {
	e := experiment{
		Slots:  0,
		Bounds: []bounds{{Low: 0, High: 3}, {Low: 5, High: 5}},
	}
	err := Validate(e)
	assert.Assert(t, err != nil)
	msg := err.Error()
	assert.Assert(t, strings.Contains(msg, "name must be set"))
	assert.Assert(t, strings.Contains(msg, "slots must be positive"))
	assert.Assert(t, strings.Contains(msg, "Bounds[1]"))
}

func TestValidateNilPointerSkipped(t *testing.T) {
	e := experiment{Name: "ok", Slots: 1, Extra: nil}
	assert.NilError(t, Validate(e))
}

func TestHelpers(t *testing.T) {
	assert.NilError(t, True(true))
	assert.Assert(t, True(false, "custom %d", 7) != nil)
	assert.NilError(t, Equal("a", "a"))
	assert.Assert(t, Equal(1, 2) != nil)
	assert.NilError(t, GreaterThanOrEqualTo(2, 2))
	assert.Assert(t, GreaterThanOrEqualTo(1, 2) != nil)
	assert.NilError(t, LessThanOrEqualTo(2, 2))
	assert.NilError(t, Between(0.5, 0.0, 1.0))
	assert.Assert(t, Between(2.0, 0.0, 1.0) != nil)
	assert.NilError(t, In("min", []string{"min", "max"}))
	assert.Assert(t, In("median", []string{"min", "max"}) != nil)
	assert.NilError(t, NotEmpty([]int{1}))
	assert.Assert(t, NotEmpty(map[string]int{}) != nil)
	assert.Assert(t, NotEmpty(42) != nil)
}

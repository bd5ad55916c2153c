package union

import (
	"encoding/json"
	"testing"

	"gotest.tools/assert"
)

type circle struct {
	Radius float64 `json:"radius"`
}

type rect struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type shape struct {
	Label string `json:"label"`

	Circle *circle `union:"kind,circle" json:"-"`
	Rect   *rect   `union:"kind,rect" json:"-"`
}

func (s shape) MarshalJSON() ([]byte, error) { return Marshal(s) }

func (s *shape) UnmarshalJSON(data []byte) error {
	if err := Unmarshal(data, s); err != nil {
		return err
	}
	type plain *shape
	return json.Unmarshal(data, plain(s))
}

func TestMarshalActiveMember(t *testing.T) {
	s := shape{Label: "c", Circle: &circle{Radius: 2}}
	bs, err := json.Marshal(s)
	assert.NilError(t, err)
	assert.Equal(t, string(bs), `{"kind":"circle","label":"c","radius":2}`)
}

func TestMarshalRejectsAmbiguous(t *testing.T) {
	_, err := Marshal(shape{Circle: &circle{}, Rect: &rect{}})
	assert.ErrorContains(t, err, "multiple members")

	_, err = Marshal(shape{})
	assert.ErrorContains(t, err, "no member set")
}

func TestUnmarshalSelectsMember(t *testing.T) {
	var s shape
	err := json.Unmarshal([]byte(`{"kind":"rect","label":"r","width":3,"height":4}`), &s)
	assert.NilError(t, err)
	assert.Equal(t, s.Label, "r")
	assert.Assert(t, s.Circle == nil)
	assert.Assert(t, s.Rect != nil)
	assert.Equal(t, s.Rect.Width, 3.0)
	assert.Equal(t, s.Rect.Height, 4.0)
}

func TestUnmarshalUnknownKind(t *testing.T) {
	var s shape
	err := json.Unmarshal([]byte(`{"kind":"triangle"}`), &s)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestUnmarshalMissingKind(t *testing.T) {
	var s shape
	err := json.Unmarshal([]byte(`{"label":"x"}`), &s)
	assert.ErrorContains(t, err, "missing")
}

func TestRoundTrip(t *testing.T) {
	in := shape{Label: "r", Rect: &rect{Width: 1, Height: 2}}
	bs, err := json.Marshal(in)
	assert.NilError(t, err)
	var out shape
	assert.NilError(t, json.Unmarshal(bs, &out))
	assert.DeepEqual(t, in, out)
}

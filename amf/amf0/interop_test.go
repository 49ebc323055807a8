package amf0

import (
	"bytes"
	"testing"

	oamf0 "github.com/ossrs/go-oryx-lib/amf0"
	"github.com/torresjeff/pvprtmp/amf"
)

// The ECMA array layout must match what SRS tooling produces for the same members.
func TestECMAArrayMatchesOryx(t *testing.T) {
	theirs := oamf0.NewEcmaArray()
	theirs.Set("a", oamf0.NewNumber(1))
	theirs.Set("b", oamf0.NewString("x"))
	want, err := theirs.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	ours, err := Marshal(&amf.ECMAArray{Props: []amf.Property{
		{Name: "a", Value: amf.Number(1)},
		{Name: "b", Value: amf.String("x")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ours, want) {
		t.Errorf("got % x, want % x", ours, want)
	}

	v, err := Unmarshal(want)
	if err != nil {
		t.Fatal(err)
	}
	arr := v.(*amf.ECMAArray)
	if b, _ := arr.Get("b"); b != amf.String("x") {
		t.Errorf("b = %#v", b)
	}
}

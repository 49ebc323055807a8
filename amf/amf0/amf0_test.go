package amf0

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf3"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   amf.Value
		want []byte
	}{
		{"number", amf.Number(1), []byte{0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0}},
		{"integer narrows to number", amf.Integer(1), []byte{0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0}},
		{"true", amf.Bool(true), []byte{0x01, 0x01}},
		{"string", amf.String("hi"), []byte{0x02, 0x00, 0x02, 'h', 'i'}},
		{"null", amf.Null{}, []byte{0x05}},
		{"undefined", amf.Undefined{}, []byte{0x06}},
		{"date", amf.NewDate(time.UnixMilli(0)), []byte{0x0B, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0x00}},
		{
			"ecma array",
			&amf.ECMAArray{Props: []amf.Property{
				{Name: "a", Value: amf.Number(1)},
				{Name: "b", Value: amf.String("x")},
			}},
			[]byte{
				0x08, 0x00, 0x00, 0x00, 0x02,
				0x00, 0x01, 'a', 0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0,
				0x00, 0x01, 'b', 0x02, 0x00, 0x01, 'x',
				0x00, 0x00, 0x09,
			},
		},
		{
			"anonymous object",
			amf.NewObject().Set("k", amf.Null{}),
			[]byte{0x03, 0x00, 0x01, 'k', 0x05, 0x00, 0x00, 0x09},
		},
		{
			"typed object",
			amf.NewTypedObject(&amf.TraitDefinition{Name: "C", Static: []string{"k"}}).Set("k", amf.Bool(false)),
			[]byte{0x10, 0x00, 0x01, 'C', 0x00, 0x01, 'k', 0x01, 0x00, 0x00, 0x00, 0x09},
		},
		{
			"strict array",
			&amf.Array{Dense: []amf.Value{amf.Null{}, amf.Bool(true)}},
			[]byte{0x0A, 0x00, 0x00, 0x00, 0x02, 0x05, 0x01, 0x01},
		},
		{"byte array goes through AVM+", amf.ByteArray{0xAB}, []byte{0x11, 0x0C, 0x03, 0xAB}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Marshal() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestLongString(t *testing.T) {
	for _, n := range []int{0xFFFE, 0xFFFF, 0x10000} {
		s := amf.String(strings.Repeat("a", n))
		b, err := Marshal(s)
		if err != nil {
			t.Fatal(err)
		}
		want := TypeString
		if n >= 0xFFFF {
			want = TypeLongString
		}
		if b[0] != want {
			t.Errorf("length %d: marker 0x%02x, want 0x%02x", n, b[0], want)
		}
		v, err := Unmarshal(b)
		if err != nil {
			t.Fatal(err)
		}
		if v != s {
			t.Errorf("length %d: round trip changed the string", n)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   amf.Value
	}{
		{"number", amf.Number(-0.5)},
		{"string", amf.String("connect")},
		{"xml document", amf.XMLDocument("<x/>")},
		{"date", amf.NewDate(time.Date(2021, 1, 2, 3, 4, 5, 6e6, time.UTC))},
		{"object", amf.NewObject().Set("app", amf.String("live")).Set("n", amf.Number(3))},
		{"ecma array", &amf.ECMAArray{Props: []amf.Property{{Name: "x", Value: amf.Bool(true)}}}},
		{"strict array", &amf.Array{Dense: []amf.Value{amf.Number(1), amf.String("2")}}},
		{"vector through AVM+", amf.VectorInt{Items: []int32{4, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(b)
			if err != nil {
				t.Fatalf("Unmarshal(% x): %v", b, err)
			}
			if !reflect.DeepEqual(got, tt.in) {
				t.Errorf("got %#v, want %#v", got, tt.in)
			}
		})
	}
}

func TestDecodeReference(t *testing.T) {
	// A strict array holding an object and a reference back to that object.
	in := []byte{
		0x0A, 0x00, 0x00, 0x00, 0x02,
		0x03, 0x00, 0x01, 'a', 0x05, 0x00, 0x00, 0x09,
		0x07, 0x00, 0x01,
	}
	v, err := Unmarshal(in)
	if err != nil {
		t.Fatal(err)
	}
	arr := v.(*amf.Array)
	if arr.Dense[0] != arr.Dense[1] {
		t.Errorf("reference resolved to %#v, want %#v", arr.Dense[1], arr.Dense[0])
	}
}

func TestEncoderNeverWritesReferences(t *testing.T) {
	shared := amf.NewObject().Set("a", amf.Null{})
	b, err := Marshal(&amf.Array{Dense: []amf.Value{shared, shared}})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.IndexByte(b, TypeReference) >= 0 {
		t.Errorf("encoding % x contains a reference marker", b)
	}

	cyclic := amf.NewObject()
	cyclic.Set("self", cyclic)
	if _, err := Marshal(cyclic); err == nil {
		t.Error("expected an error for a cyclic object")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"movie clip", []byte{0x04}, amf.ErrUnknownMarker},
		{"record set", []byte{0x0E}, amf.ErrUnknownMarker},
		{"unknown", []byte{0x20}, amf.ErrUnknownMarker},
		{"bad reference", []byte{0x07, 0x00, 0x00}, amf.ErrBadReference},
		{"missing object end", []byte{0x03, 0x00, 0x00, 0x05}, amf.ErrUnknownMarker},
		{"truncated number", []byte{0x00, 0x3F}, io.ErrUnexpectedEOF},
		{"truncated object", []byte{0x03, 0x00, 0x01, 'a'}, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal(% x) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestAVMPlusSharesTables(t *testing.T) {
	enc3 := amf3.NewEncoder(nil)
	dec3 := amf3.NewDecoder(nil)
	enc := NewEncoder(enc3)
	dict := &amf.Dictionary{Entries: []amf.DictionaryEntry{{Key: amf.String("k"), Value: amf.Integer(1)}}}

	var messages [][]byte
	for i := 0; i < 2; i++ {
		b, err := enc.Marshal(dict)
		if err != nil {
			t.Fatal(err)
		}
		messages = append(messages, b)
	}
	if want := []byte{TypeAVMPlus, amf3.TypeDictionary, 0x00}; !bytes.Equal(messages[1], want) {
		t.Fatalf("second message = % x, want the reference % x", messages[1], want)
	}

	// Each message gets its own AMF0 decoder; the AMF3 tables carry over.
	var got []amf.Value
	for i, m := range messages {
		v, err := NewDecoder(nil, dec3).Decode(bytes.NewReader(m))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		got = append(got, v)
	}
	if got[0] != got[1] {
		t.Errorf("second message decoded to %#v, want the first dictionary", got[1])
	}
	if !reflect.DeepEqual(got[0], amf.Value(dict)) {
		t.Errorf("got %#v, want %#v", got[0], dict)
	}
}

func TestDecodeAll(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(nil)
	for _, v := range []amf.Value{amf.String("_result"), amf.Number(1), amf.Null{}} {
		if err := enc.Encode(&buf, v); err != nil {
			t.Fatal(err)
		}
	}
	values, err := NewDecoder(nil, nil).DecodeAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := []amf.Value{amf.String("_result"), amf.Number(1), amf.Null{}}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("got %#v, want %#v", values, want)
	}
}

package amf3

import (
	"bytes"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

func TestMarshalBytes(t *testing.T) {
	typed := &amf.TraitDefinition{Name: "T", Static: []string{"a"}}
	first := amf.NewTypedObject(typed).Set("a", amf.Integer(1))
	second := amf.NewTypedObject(typed).Set("a", amf.Integer(2))

	tests := []struct {
		name string
		in   amf.Value
		want []byte
	}{
		{"null", amf.Null{}, []byte{0x01}},
		{"true", amf.Bool(true), []byte{0x03}},
		{"integer", amf.Integer(5), []byte{0x04, 0x05}},
		{"empty string", amf.String(""), []byte{0x06, 0x01}},
		{"date", amf.NewDate(time.UnixMilli(0)), []byte{0x08, 0x01, 0, 0, 0, 0, 0, 0, 0, 0}},
		{
			"repeated string is a reference",
			&amf.Array{Dense: []amf.Value{amf.String("dup"), amf.String("dup")}},
			[]byte{0x09, 0x05, 0x01, 0x06, 0x07, 'd', 'u', 'p', 0x06, 0x00},
		},
		{
			"repeated trait is a reference",
			&amf.Array{Dense: []amf.Value{first, second}},
			[]byte{
				0x09, 0x05, 0x01,
				0x0A, 0x13, 0x03, 'T', 0x03, 'a', 0x04, 0x01,
				0x0A, 0x01, 0x04, 0x02,
			},
		},
		{
			"anonymous object",
			amf.NewObject().Set("k", amf.String("v")),
			[]byte{0x0A, 0x0B, 0x01, 0x03, 'k', 0x06, 0x03, 'v', 0x01},
		},
		{
			"vector int",
			amf.VectorInt{Fixed: true, Items: []int32{1, -1}},
			[]byte{0x0D, 0x05, 0x01, 0, 0, 0, 1, 0xFF, 0xFF, 0xFF, 0xFF},
		},
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

func TestRoundTrip(t *testing.T) {
	player := &amf.TraitDefinition{Name: "com.riotgames.Player", Static: []string{"name", "level"}, Dynamic: true}
	obj := amf.NewTypedObject(player).
		Set("name", amf.String("Annie")).
		Set("level", amf.Integer(30)).
		Set("extra", amf.Bool(true))

	tests := []struct {
		name string
		in   amf.Value
	}{
		{"undefined", amf.Undefined{}},
		{"false", amf.Bool(false)},
		{"negative integer", amf.Integer(-42)},
		{"number", amf.Number(3.25)},
		{"string", amf.String("hello")},
		{"xml document", amf.XMLDocument("<a/>")},
		{"xml", amf.XML("<b/>")},
		{"date", amf.NewDate(time.Date(2020, 5, 1, 12, 0, 0, 123e6, time.UTC))},
		{"byte array", amf.ByteArray{1, 2, 3}},
		{"vector uint", amf.VectorUint{Items: []uint32{0, 1, 0xFFFFFFFF}}},
		{"vector double", amf.VectorDouble{Fixed: true, Items: []float64{0.5, -2}}},
		{"vector object", &amf.VectorObject{TypeName: "*", Items: []amf.Value{amf.String("x"), amf.Null{}}}},
		{"dictionary", &amf.Dictionary{WeakKeys: true, Entries: []amf.DictionaryEntry{
			{Key: amf.Integer(1), Value: amf.String("one")},
			{Key: amf.String("two"), Value: amf.Number(2)},
		}}},
		{"mixed array", &amf.Array{
			Dense: []amf.Value{amf.Integer(1), amf.String("s")},
			Assoc: []amf.Property{{Name: "key", Value: amf.Bool(true)}},
		}},
		{"typed dynamic object", obj},
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

func TestCyclicObject(t *testing.T) {
	obj := amf.NewObject()
	obj.Set("self", obj)

	b, err := Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}
	v, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	got := v.(*amf.Object)
	self, _ := got.Get("self")
	if self != amf.Value(got) {
		t.Errorf("self member is %#v, want the object itself", self)
	}
}

func TestTablesPersistAcrossValues(t *testing.T) {
	enc := NewEncoder(nil)
	dec := NewDecoder(nil)
	var buf bytes.Buffer

	for i := 0; i < 2; i++ {
		if err := enc.Encode(&buf, amf.String("shared")); err != nil {
			t.Fatal(err)
		}
	}
	if want := []byte{0x06, 0x0D, 's', 'h', 'a', 'r', 'e', 'd', 0x06, 0x00}; !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("stream = % x, want % x", buf.Bytes(), want)
	}
	for i := 0; i < 2; i++ {
		v, err := dec.Decode(&buf)
		if err != nil {
			t.Fatalf("value %d: %v", i, err)
		}
		if v != amf.String("shared") {
			t.Errorf("value %d = %#v", i, v)
		}
	}
	if _, err := dec.Decode(&buf); err != io.EOF {
		t.Errorf("after last value: %v, want io.EOF", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"unknown marker", []byte{0x12}, amf.ErrUnknownMarker},
		{"string reference", []byte{0x06, 0x00}, amf.ErrBadReference},
		{"object reference", []byte{0x0A, 0x02}, amf.ErrBadReference},
		{"trait reference", []byte{0x0A, 0x01}, amf.ErrBadReference},
		{"unregistered externalizable", []byte{0x0A, 0x07, 0x03, 'X'}, amf.ErrUnknownExternal},
		{"truncated string", []byte{0x06, 0x07, 'a'}, io.ErrUnexpectedEOF},
		{"truncated array", []byte{0x09, 0x03, 0x01}, io.ErrUnexpectedEOF},
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

type player struct {
	Name  string
	Level int32
}

var playerSchema = &amf.Schema{
	Name:   "Player",
	Fields: []amf.Field{{Name: "name"}, {Name: "level"}},
}

func (p *player) UnmarshalAMF(o *amf.Object) (err error) {
	if p.Name, err = o.String("name"); err != nil {
		return err
	}
	p.Level, err = o.Int32("level")
	return err
}

func TestRegisteredClass(t *testing.T) {
	reg := amf.NewRegistry()
	if err := reg.Register(playerSchema, func() amf.Unmarshaler { return &player{} }); err != nil {
		t.Fatal(err)
	}

	good := playerSchema.NewObject().Set("name", amf.String("Lux")).Set("level", amf.Integer(12))
	bad := playerSchema.NewObject().Set("name", amf.String("Lux")).Set("level", amf.String("twelve"))

	enc := NewEncoder(reg)
	var buf bytes.Buffer
	for _, v := range []amf.Value{bad, good} {
		if err := enc.Encode(&buf, v); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewDecoder(reg)
	v, err := dec.Decode(&buf)
	var fe *amf.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("first value error = %v, want *amf.FieldError", err)
	}
	if fe.Class != "Player" || fe.Field != "level" {
		t.Errorf("FieldError = %+v", fe)
	}
	if v == nil {
		t.Fatal("the object should still be returned with its FieldError")
	}

	v, err = dec.Decode(&buf)
	if err != nil {
		t.Fatalf("second value: %v", err)
	}
	p, ok := v.(*amf.Object).Instance.(*player)
	if !ok {
		t.Fatalf("Instance = %#v", v.(*amf.Object).Instance)
	}
	if *p != (player{Name: "Lux", Level: 12}) {
		t.Errorf("got %+v", *p)
	}
}

type counter struct {
	amf.External
	N     int32
	Label amf.Value
	fail  bool
}

func (*counter) ClassName() string { return "test.Counter" }

func (c *counter) WriteExternal(out amf.Output) error {
	if c.fail {
		return errors.New("refused")
	}
	if err := WriteInt29(out, c.N); err != nil {
		return err
	}
	return out.WriteValue(c.Label)
}

func (c *counter) ReadExternal(in amf.Input) (err error) {
	if c.N, err = ReadInt29(in); err != nil {
		return err
	}
	c.Label, err = in.ReadValue()
	return err
}

func TestExternalizable(t *testing.T) {
	reg := amf.NewRegistry()
	if err := reg.RegisterExternal("test.Counter", func() amf.Externalizable { return &counter{} }); err != nil {
		t.Fatal(err)
	}
	in := &counter{N: 7, Label: amf.String("seven")}
	b, err := NewEncoder(reg).Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewDecoder(reg).Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v, amf.Value(in)) {
		t.Errorf("got %#v, want %#v", v, in)
	}
}

func TestFailedEncodeLeavesTablesUntouched(t *testing.T) {
	enc := NewEncoder(nil)
	bad := &amf.Array{Dense: []amf.Value{amf.String("abc"), &counter{fail: true}}}
	if _, err := enc.Marshal(bad); err == nil {
		t.Fatal("expected an error")
	}
	b, err := enc.Marshal(amf.String("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x06, 0x07, 'a', 'b', 'c'}; !bytes.Equal(b, want) {
		t.Errorf("got % x, want the string inline % x", b, want)
	}
}

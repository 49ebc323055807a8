package flex

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf3"
)

const (
	clientID = "6F1D2C3B-4A59-4E8D-9C7B-112233445566"
	msgID    = "0B0E3E46-7A2C-4C4F-8D2B-AABBCCDDEEFF"
)

func roundTrip(t *testing.T, reg *amf.Registry, v amf.Value) amf.Value {
	t.Helper()
	b, err := amf3.NewEncoder(reg).Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := amf3.NewDecoder(reg).Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal(% x): %v", b, err)
	}
	return got
}

func TestRegister(t *testing.T) {
	reg := amf.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg); err == nil {
		t.Error("registering twice should fail")
	}
	for _, name := range []string{ArrayCollectionClass, ObjectProxyClass, "DSK", "DSA", "DSC"} {
		if _, ok := reg.NewExternal(name); !ok {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	reg := NewRegistry()
	base := AbstractMessage{
		Body:        amf.String("ok"),
		ClientID:    clientID,
		Destination: "summonerService",
		Headers:     amf.NewObject().Set("DSId", amf.String("x")),
		MessageID:   "plain-id",
		Timestamp:   1.6e12,
		TimeToLive:  30,
	}
	tests := []struct {
		name string
		in   amf.Externalizable
	}{
		{"acknowledge", &AcknowledgeMessageExt{AsyncMessage: AsyncMessage{AbstractMessage: base, CorrelationID: msgID}}},
		{"async", &AsyncMessageExt{AsyncMessage: AsyncMessage{AbstractMessage: base, CorrelationID: "corr"}}},
		{"command", &CommandMessageExt{AsyncMessage: AsyncMessage{AbstractMessage: base}, Operation: 5}},
		{"empty acknowledge", &AcknowledgeMessageExt{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, reg, tt.in)
			if !reflect.DeepEqual(got, amf.Value(tt.in)) {
				t.Errorf("got %#v, want %#v", got, tt.in)
			}
		})
	}
}

func TestUnknownFlagsAreSkipped(t *testing.T) {
	in := []byte{
		0x0A, 0x07, 0x07, 'D', 'S', 'A',
		0x81, 0x04, // body, then an unknown bit in the second byte
		0x06, 0x03, 'b',
		0x04, 0x07, // value of the unknown field
		0x00, // no async fields
	}
	v, err := amf3.NewDecoder(NewRegistry()).Unmarshal(in)
	if err != nil {
		t.Fatal(err)
	}
	msg, ok := v.(*AsyncMessageExt)
	if !ok {
		t.Fatalf("got %#v", v)
	}
	if msg.Body != amf.String("b") {
		t.Errorf("Body = %#v", msg.Body)
	}
}

func TestArrayCollection(t *testing.T) {
	c := NewArrayCollection(amf.String("a"), amf.Integer(2))
	got := roundTrip(t, NewRegistry(), c).(*ArrayCollection)
	if !reflect.DeepEqual(got.Items(), c.Items()) {
		t.Errorf("Items() = %#v, want %#v", got.Items(), c.Items())
	}

	p := &ObjectProxy{Object: amf.NewObject().Set("k", amf.Bool(true))}
	if gotProxy := roundTrip(t, NewRegistry(), p); !reflect.DeepEqual(gotProxy, amf.Value(p)) {
		t.Errorf("got %#v, want %#v", gotProxy, p)
	}
}

func TestRemotingMessage(t *testing.T) {
	m := NewRemotingMessage("summonerService", "getSummonerByName", amf.String("Faker"))
	m.DSId = "DS-1"
	if len(m.MessageID) != 36 {
		t.Fatalf("MessageID = %q", m.MessageID)
	}
	v, err := m.MarshalAMF()
	if err != nil {
		t.Fatal(err)
	}
	obj := v.(*amf.Object)
	if got := obj.Trait.Static; !reflect.DeepEqual(got, []string{
		"operation", "source", "body", "clientId", "destination", "headers", "messageId", "timestamp", "timeToLive",
	}) {
		t.Errorf("sealed members = %v", got)
	}

	decoded := roundTrip(t, NewRegistry(), obj).(*amf.Object)
	got, ok := decoded.Instance.(*RemotingMessage)
	if !ok {
		t.Fatalf("Instance = %#v", decoded.Instance)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("got %+v, want %+v", got, m)
	}
}

func TestResult(t *testing.T) {
	ack := &AcknowledgeMessageExt{AsyncMessage: AsyncMessage{AbstractMessage: AbstractMessage{Body: amf.Integer(1)}}}
	if v, err := Result(ack); err != nil || v != amf.Integer(1) {
		t.Errorf("Result(ack) = %#v, %v", v, err)
	}

	fault := &ErrorMessage{FaultCode: "Server.Processing", FaultString: "no such summoner"}
	v, err := fault.MarshalAMF()
	if err != nil {
		t.Fatal(err)
	}
	decoded := roundTrip(t, NewRegistry(), v)
	_, err = Result(decoded)
	var em *ErrorMessage
	if !errors.As(err, &em) || em.FaultCode != "Server.Processing" {
		t.Errorf("Result(fault) error = %v", err)
	}
	if err.Error() != "flex: Server.Processing: no such summoner" {
		t.Errorf("Error() = %q", err.Error())
	}
}

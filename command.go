package rtmp

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf0"
	"github.com/torresjeff/pvprtmp/amf/amf3"
)

// Command names used by the connection itself.
const (
	CommandConnect  = "connect"
	CommandResult   = "_result"
	CommandError    = "_error"
	CommandReceive  = "receive"
	CommandOnStatus = "onStatus"
)

// Command is an invoke: a remote procedure call, or the answer to one. Name may be empty
// when the peer sent a null method name.
type Command struct {
	Name          string
	TransactionID float64
	// Object is the command object, usually Null.
	Object amf.Value
	Args   []amf.Value
	// AMF3 sends the command as an AMF3 command message. Arguments with no AMF0 primitive
	// form are then written in AMF3 behind the AVM+ marker.
	AMF3 bool
}

// Arg returns the i-th argument, or nil when there is none.
func (c *Command) Arg(i int) amf.Value {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Notify is the body of a data message: a handler name and its arguments.
type Notify struct {
	Name string
	Args []amf.Value
	AMF3 bool
}

// Codec turns command and data message bodies into values and back. It holds one
// connection's AMF3 reference tables, one set per direction, so every message of a
// connection must go through the same Codec, in wire order.
type Codec struct {
	reg  *amf.Registry
	enc0 *amf0.Encoder
	enc3 *amf3.Encoder
	dec3 *amf3.Decoder
}

// NewCodec returns a codec with empty tables. reg may be nil.
func NewCodec(reg *amf.Registry) *Codec {
	enc3 := amf3.NewEncoder(reg)
	return &Codec{
		reg:  reg,
		enc0: amf0.NewEncoder(enc3),
		enc3: enc3,
		dec3: amf3.NewDecoder(reg),
	}
}

// EncodeCommand returns the message carrying cmd on the command channel. When any part of
// cmd fails to encode the AMF3 tables are left as they were.
func (c *Codec) EncodeCommand(cmd *Command) (*Message, error) {
	mark := c.enc3.Mark()
	m, err := c.encodeCommand(cmd)
	if err != nil {
		c.enc3.Rollback(mark)
		return nil, err
	}
	return m, nil
}

func (c *Codec) encodeCommand(cmd *Command) (*Message, error) {
	t := CommandMessageAMF0
	var b []byte
	if cmd.AMF3 {
		t = CommandMessageAMF3
		// AMF3 commands start with a format selector, always 0
		b = append(b, 0x00)
	}
	var err error
	if cmd.Name == "" {
		b = append(b, amf0.TypeNull)
	} else if b, err = c.enc0.AppendValue(b, amf.String(cmd.Name)); err != nil {
		return nil, err
	}
	if b, err = c.enc0.AppendValue(b, amf.Number(cmd.TransactionID)); err != nil {
		return nil, err
	}
	object := cmd.Object
	if object == nil {
		object = amf.Null{}
	}
	if b, err = c.appendArg(b, object, cmd.AMF3); err != nil {
		return nil, errors.Wrapf(err, "command %q object", cmd.Name)
	}
	for i, arg := range cmd.Args {
		if b, err = c.appendArg(b, arg, cmd.AMF3); err != nil {
			return nil, errors.Wrapf(err, "command %q argument %d", cmd.Name, i)
		}
	}
	return &Message{Type: t, ChunkStreamID: CommandChannel, Payload: b}, nil
}

// DecodeCommand parses an AMF0 or AMF3 command message.
//
// A *amf.FieldError from a registered class is returned together with the command; the
// rest of the body was still read.
func (c *Codec) DecodeCommand(m *Message) (*Command, error) {
	if m.Type != CommandMessageAMF0 && m.Type != CommandMessageAMF3 {
		return nil, errors.Wrapf(ErrUnknownMessageType, "%s is not a command", m.Type)
	}
	values, bindErr := c.decodeBody(m, m.Type == CommandMessageAMF3)
	if values == nil && bindErr != nil {
		return nil, bindErr
	}
	if len(values) < 2 {
		return nil, errors.Wrapf(ErrMalformedMessage, "command with %d values", len(values))
	}
	cmd := &Command{AMF3: m.Type == CommandMessageAMF3, Object: amf.Null{}}
	var err error
	if cmd.Name, err = name(values[0]); err != nil {
		return nil, err
	}
	switch tx := values[1].(type) {
	case amf.Number:
		cmd.TransactionID = float64(tx)
	case amf.Integer:
		cmd.TransactionID = float64(tx)
	default:
		return nil, errors.Wrapf(ErrMalformedMessage, "command %q transaction id is %T", cmd.Name, values[1])
	}
	if len(values) > 2 {
		cmd.Object = values[2]
		cmd.Args = values[3:]
	}
	return cmd, bindErr
}

// EncodeNotify returns the data message carrying n.
func (c *Codec) EncodeNotify(n *Notify) (*Message, error) {
	mark := c.enc3.Mark()
	m, err := c.encodeNotify(n)
	if err != nil {
		c.enc3.Rollback(mark)
		return nil, err
	}
	return m, nil
}

func (c *Codec) encodeNotify(n *Notify) (*Message, error) {
	t := DataMessageAMF0
	var b []byte
	if n.AMF3 {
		t = DataMessageAMF3
		b = append(b, 0x00)
	}
	b, err := c.enc0.AppendValue(b, amf.String(n.Name))
	if err != nil {
		return nil, err
	}
	for i, arg := range n.Args {
		if b, err = c.appendArg(b, arg, n.AMF3); err != nil {
			return nil, errors.Wrapf(err, "notify %q argument %d", n.Name, i)
		}
	}
	return &Message{Type: t, ChunkStreamID: CommandChannel, Payload: b}, nil
}

// DecodeNotify parses an AMF0 or AMF3 data message.
func (c *Codec) DecodeNotify(m *Message) (*Notify, error) {
	if m.Type != DataMessageAMF0 && m.Type != DataMessageAMF3 {
		return nil, errors.Wrapf(ErrUnknownMessageType, "%s is not a data message", m.Type)
	}
	values, bindErr := c.decodeBody(m, m.Type == DataMessageAMF3)
	if values == nil && bindErr != nil {
		return nil, bindErr
	}
	if len(values) == 0 {
		return nil, errors.Wrap(ErrMalformedMessage, "empty data message")
	}
	n := &Notify{AMF3: m.Type == DataMessageAMF3, Args: values[1:]}
	var err error
	if n.Name, err = name(values[0]); err != nil {
		return nil, err
	}
	return n, bindErr
}

// decodeBody reads every value of a body. AMF0 references are scoped to one message, so
// each body gets a fresh AMF0 decoder in front of the connection's AMF3 decoder.
//
// The values are nil when the body could not be read. Otherwise a non-nil error is the
// first *amf.FieldError met.
func (c *Codec) decodeBody(m *Message, skipFormat bool) ([]amf.Value, error) {
	r := bytes.NewReader(m.Payload)
	if skipFormat {
		if _, err := r.ReadByte(); err != nil {
			return nil, errors.Wrapf(ErrMalformedMessage, "empty %s body", m.Type)
		}
	}
	dec := amf0.NewDecoder(c.reg, c.dec3)
	var values []amf.Value
	var bindErr error
	for {
		v, err := dec.Decode(r)
		if err == io.EOF {
			if values == nil {
				values = []amf.Value{}
			}
			return values, bindErr
		}
		if v == nil {
			return nil, errors.Wrapf(err, "%s value %d", m.Type, len(values))
		}
		if err != nil && bindErr == nil {
			bindErr = err
		}
		values = append(values, v)
	}
}

func (c *Codec) appendArg(b []byte, v amf.Value, useAMF3 bool) ([]byte, error) {
	if useAMF3 && !primitive(v) {
		b = append(b, amf0.TypeAVMPlus)
		return c.enc3.AppendValue(b, v)
	}
	return c.enc0.AppendValue(b, v)
}

func primitive(v amf.Value) bool {
	switch v.(type) {
	case nil, amf.Null, amf.Undefined, amf.Bool, amf.Number, amf.Integer, amf.String:
		return true
	}
	return false
}

func name(v amf.Value) (string, error) {
	switch t := v.(type) {
	case amf.String:
		return string(t), nil
	case amf.Null, amf.Undefined:
		return "", nil
	}
	return "", errors.Wrapf(ErrMalformedMessage, "method name is %T", v)
}

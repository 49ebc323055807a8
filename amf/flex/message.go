package flex

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

// The small message encodings prefix each class level with a run of flag bytes. The high
// bit of a flag byte says another one follows; every other bit says one field follows.
// Bits this package does not know are still read, and their values dropped.
const hasNextFlag = 0x80

// AbstractMessage flags.
const (
	bodyFlag        = 0x01
	clientIDFlag    = 0x02
	destinationFlag = 0x04
	headersFlag     = 0x08
	messageIDFlag   = 0x10
	timestampFlag   = 0x20
	timeToLiveFlag  = 0x40

	clientIDBytesFlag  = 0x01
	messageIDBytesFlag = 0x02
)

// AsyncMessage flags.
const (
	correlationIDFlag      = 0x01
	correlationIDBytesFlag = 0x02
)

// CommandMessage flags.
const operationFlag = 0x01

// AbstractMessage holds the fields shared by every Flex message. Ids that travel as 16 raw
// bytes are turned into upper case UUID text.
type AbstractMessage struct {
	Body        amf.Value
	ClientID    string
	Destination string
	Headers     amf.Value
	MessageID   string
	Timestamp   float64
	TimeToLive  float64
}

// AsyncMessage adds the id of the message this one answers.
type AsyncMessage struct {
	AbstractMessage
	CorrelationID string
}

// AcknowledgeMessageExt (DSK) is the result of a successful remoting call.
type AcknowledgeMessageExt struct {
	amf.External
	AsyncMessage
}

// AsyncMessageExt (DSA) is a message pushed by the server.
type AsyncMessageExt struct {
	amf.External
	AsyncMessage
}

// CommandMessageExt (DSC) carries a messaging command such as a subscribe or a ping.
type CommandMessageExt struct {
	amf.External
	AsyncMessage
	Operation int32
}

func (*AcknowledgeMessageExt) ClassName() string { return AcknowledgeMessageExtClass }
func (*AsyncMessageExt) ClassName() string       { return AsyncMessageExtClass }
func (*CommandMessageExt) ClassName() string     { return CommandMessageExtClass }

func (m *AcknowledgeMessageExt) ReadExternal(in amf.Input) error {
	if err := m.readAsync(in); err != nil {
		return err
	}
	// AcknowledgeMessage has no fields of its own but still writes its flags
	return skipFlags(in, 0)
}

func (m *AcknowledgeMessageExt) WriteExternal(out amf.Output) error {
	if err := m.writeAsync(out); err != nil {
		return err
	}
	return out.WriteByte(0)
}

func (m *AsyncMessageExt) ReadExternal(in amf.Input) error {
	return m.readAsync(in)
}

func (m *AsyncMessageExt) WriteExternal(out amf.Output) error {
	return m.writeAsync(out)
}

func (m *CommandMessageExt) ReadExternal(in amf.Input) error {
	if err := m.readAsync(in); err != nil {
		return err
	}
	flags, err := readFlags(in)
	if err != nil {
		return err
	}
	for i, f := range flags {
		known := 0
		if i == 0 {
			if f&operationFlag != 0 {
				v, err := in.ReadValue()
				if err != nil {
					return err
				}
				op, err := asNumber(v, "operation")
				if err != nil {
					return err
				}
				m.Operation = int32(op)
			}
			known = 1
		}
		if err := discardFields(in, f, known); err != nil {
			return err
		}
	}
	return nil
}

func (m *CommandMessageExt) WriteExternal(out amf.Output) error {
	if err := m.writeAsync(out); err != nil {
		return err
	}
	if err := out.WriteByte(operationFlag); err != nil {
		return err
	}
	return out.WriteValue(amf.Integer(m.Operation))
}

func (m *AbstractMessage) readAbstract(in amf.Input) error {
	flags, err := readFlags(in)
	if err != nil {
		return err
	}
	for i, f := range flags {
		known := 0
		switch i {
		case 0:
			fields := []struct {
				bit  byte
				read func(amf.Value) error
			}{
				{bodyFlag, func(v amf.Value) error { m.Body = v; return nil }},
				{clientIDFlag, func(v amf.Value) (err error) { m.ClientID, err = asString(v, "clientId"); return }},
				{destinationFlag, func(v amf.Value) (err error) { m.Destination, err = asString(v, "destination"); return }},
				{headersFlag, func(v amf.Value) error { m.Headers = v; return nil }},
				{messageIDFlag, func(v amf.Value) (err error) { m.MessageID, err = asString(v, "messageId"); return }},
				{timestampFlag, func(v amf.Value) (err error) { m.Timestamp, err = asNumber(v, "timestamp"); return }},
				{timeToLiveFlag, func(v amf.Value) (err error) { m.TimeToLive, err = asNumber(v, "timeToLive"); return }},
			}
			for _, field := range fields {
				if f&field.bit == 0 {
					continue
				}
				v, err := in.ReadValue()
				if err != nil {
					return err
				}
				if err := field.read(v); err != nil {
					return err
				}
			}
			known = 7
		case 1:
			if f&clientIDBytesFlag != 0 {
				if m.ClientID, err = readUUID(in, "clientIdBytes"); err != nil {
					return err
				}
			}
			if f&messageIDBytesFlag != 0 {
				if m.MessageID, err = readUUID(in, "messageIdBytes"); err != nil {
					return err
				}
			}
			known = 2
		}
		if err := discardFields(in, f, known); err != nil {
			return err
		}
	}
	return nil
}

func (m *AbstractMessage) writeAbstract(out amf.Output) error {
	var first, second byte
	var values []amf.Value
	if m.Body != nil {
		first |= bodyFlag
		values = append(values, m.Body)
	}
	clientID, clientIDBytes := splitID(m.ClientID)
	if clientID != "" {
		first |= clientIDFlag
		values = append(values, amf.String(clientID))
	}
	if m.Destination != "" {
		first |= destinationFlag
		values = append(values, amf.String(m.Destination))
	}
	if m.Headers != nil {
		first |= headersFlag
		values = append(values, m.Headers)
	}
	messageID, messageIDBytes := splitID(m.MessageID)
	if messageID != "" {
		first |= messageIDFlag
		values = append(values, amf.String(messageID))
	}
	if m.Timestamp != 0 {
		first |= timestampFlag
		values = append(values, amf.Number(m.Timestamp))
	}
	if m.TimeToLive != 0 {
		first |= timeToLiveFlag
		values = append(values, amf.Number(m.TimeToLive))
	}
	if clientIDBytes != nil {
		second |= clientIDBytesFlag
		values = append(values, clientIDBytes)
	}
	if messageIDBytes != nil {
		second |= messageIDBytesFlag
		values = append(values, messageIDBytes)
	}
	if second != 0 {
		first |= hasNextFlag
	}
	if err := out.WriteByte(first); err != nil {
		return err
	}
	if second != 0 {
		if err := out.WriteByte(second); err != nil {
			return err
		}
	}
	for _, v := range values {
		if err := out.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *AsyncMessage) readAsync(in amf.Input) error {
	if err := m.readAbstract(in); err != nil {
		return err
	}
	flags, err := readFlags(in)
	if err != nil {
		return err
	}
	for i, f := range flags {
		known := 0
		if i == 0 {
			if f&correlationIDFlag != 0 {
				v, err := in.ReadValue()
				if err != nil {
					return err
				}
				if m.CorrelationID, err = asString(v, "correlationId"); err != nil {
					return err
				}
			}
			if f&correlationIDBytesFlag != 0 {
				if m.CorrelationID, err = readUUID(in, "correlationIdBytes"); err != nil {
					return err
				}
			}
			known = 2
		}
		if err := discardFields(in, f, known); err != nil {
			return err
		}
	}
	return nil
}

func (m *AsyncMessage) writeAsync(out amf.Output) error {
	if err := m.writeAbstract(out); err != nil {
		return err
	}
	id, raw := splitID(m.CorrelationID)
	switch {
	case raw != nil:
		if err := out.WriteByte(correlationIDBytesFlag); err != nil {
			return err
		}
		return out.WriteValue(raw)
	case id != "":
		if err := out.WriteByte(correlationIDFlag); err != nil {
			return err
		}
		return out.WriteValue(amf.String(id))
	}
	return out.WriteByte(0)
}

func readFlags(in amf.Input) ([]byte, error) {
	var flags []byte
	for {
		f, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
		if f&hasNextFlag == 0 {
			return flags, nil
		}
	}
}

// skipFlags reads a flag run of a level with known fields in its first byte and drops
// every field.
func skipFlags(in amf.Input, known int) error {
	flags, err := readFlags(in)
	if err != nil {
		return err
	}
	for i, f := range flags {
		k := 0
		if i == 0 {
			k = known
		}
		if err := discardFields(in, f, k); err != nil {
			return err
		}
	}
	return nil
}

// discardFields reads and drops the values of the bits of f at or above position known.
func discardFields(in amf.Input, f byte, known int) error {
	for bit := known; bit < 7; bit++ {
		if f&(1<<bit) != 0 {
			if _, err := in.ReadValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

// readUUID reads a ByteArray holding a 16 byte id.
func readUUID(in amf.Input, field string) (string, error) {
	v, err := in.ReadValue()
	if err != nil {
		return "", err
	}
	b, ok := v.(amf.ByteArray)
	if !ok {
		return "", &amf.FieldError{Field: field, Want: "uuid bytes", Got: v}
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", errors.Wrap(err, field)
	}
	return strings.ToUpper(id.String()), nil
}

// splitID decides how an id is written: as raw bytes when it is a UUID, as text otherwise.
func splitID(s string) (string, amf.Value) {
	if s == "" {
		return "", nil
	}
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 {
		return s, nil
	}
	b, _ := id.MarshalBinary()
	return "", amf.ByteArray(b)
}

func asString(v amf.Value, field string) (string, error) {
	switch s := v.(type) {
	case amf.String:
		return string(s), nil
	case amf.Null, amf.Undefined:
		return "", nil
	}
	return "", &amf.FieldError{Field: field, Want: "string", Got: v}
}

func asNumber(v amf.Value, field string) (float64, error) {
	switch n := v.(type) {
	case amf.Number:
		return float64(n), nil
	case amf.Integer:
		return float64(n), nil
	case amf.Null, amf.Undefined:
		return 0, nil
	}
	return 0, &amf.FieldError{Field: field, Want: "number", Got: v}
}

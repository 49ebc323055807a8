package flex

import (
	"fmt"

	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/rand"
)

// Header names understood by the remoting endpoint.
const (
	HeaderRequestTimeout = "DSRequestTimeout"
	HeaderEndpoint       = "DSEndpoint"
	HeaderID             = "DSId"
)

// Defaults used by NewRemotingMessage.
const (
	DefaultEndpoint       = "my-rtmps"
	DefaultRequestTimeout = 60
)

// AbstractMessageSchema lists the members every typed Flex message inherits.
var AbstractMessageSchema = &amf.Schema{
	Name: "flex.messaging.messages.AbstractMessage",
	Fields: []amf.Field{
		{Name: "body"},
		{Name: "clientId"},
		{Name: "destination"},
		{Name: "headers"},
		{Name: "messageId"},
		{Name: "timestamp"},
		{Name: "timeToLive"},
	},
}

// RemotingMessageSchema is the shape of a remote service call.
var RemotingMessageSchema = &amf.Schema{
	Name:   RemotingMessageClass,
	Parent: AbstractMessageSchema,
	Fields: []amf.Field{
		{Name: "operation"},
		{Name: "source"},
	},
}

// ErrorMessageSchema is the shape of the fault returned by a failed call.
var ErrorMessageSchema = &amf.Schema{
	Name:    ErrorMessageClass,
	Dynamic: true,
	Parent:  AbstractMessageSchema,
	Fields: []amf.Field{
		{Name: "faultCode"},
		{Name: "faultString"},
		{Name: "faultDetail"},
		{Name: "rootCause"},
		{Name: "extendedData"},
		{Name: "correlationId"},
	},
}

// RemotingMessage calls Operation on the service named by Destination with Body as the
// arguments.
type RemotingMessage struct {
	Destination    string
	Operation      string
	Source         string
	Body           []amf.Value
	ClientID       string
	MessageID      string
	Endpoint       string
	DSId           string
	RequestTimeout int32
	Timestamp      float64
	TimeToLive     float64
}

// NewRemotingMessage returns a call with a fresh message id and the default endpoint and
// request timeout.
func NewRemotingMessage(destination, operation string, body ...amf.Value) *RemotingMessage {
	return &RemotingMessage{
		Destination:    destination,
		Operation:      operation,
		Body:           body,
		MessageID:      rand.GenerateMessageID(),
		Endpoint:       DefaultEndpoint,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// MarshalAMF builds the typed object sent on the wire.
func (m *RemotingMessage) MarshalAMF() (amf.Value, error) {
	headers := amf.NewObject()
	if m.RequestTimeout != 0 {
		headers.Set(HeaderRequestTimeout, amf.Integer(m.RequestTimeout))
	}
	if m.Endpoint != "" {
		headers.Set(HeaderEndpoint, amf.String(m.Endpoint))
	}
	if m.DSId != "" {
		headers.Set(HeaderID, amf.String(m.DSId))
	}
	body := make([]amf.Value, len(m.Body))
	copy(body, m.Body)

	o := RemotingMessageSchema.NewObject().
		Set("destination", amf.String(m.Destination)).
		Set("operation", amf.String(m.Operation)).
		Set("body", &amf.Array{Dense: body}).
		Set("headers", headers).
		Set("messageId", amf.String(m.MessageID)).
		Set("timestamp", amf.Number(m.Timestamp)).
		Set("timeToLive", amf.Number(m.TimeToLive))
	if m.Source != "" {
		o.Set("source", amf.String(m.Source))
	}
	if m.ClientID != "" {
		o.Set("clientId", amf.String(m.ClientID))
	}
	return o, nil
}

func (m *RemotingMessage) UnmarshalAMF(o *amf.Object) (err error) {
	if m.Destination, err = o.String("destination"); err != nil {
		return err
	}
	if m.Operation, err = o.String("operation"); err != nil {
		return err
	}
	if m.Source, err = o.String("source"); err != nil {
		return err
	}
	if m.ClientID, err = o.String("clientId"); err != nil {
		return err
	}
	if m.MessageID, err = o.String("messageId"); err != nil {
		return err
	}
	if m.Timestamp, err = o.Float64("timestamp"); err != nil {
		return err
	}
	if m.TimeToLive, err = o.Float64("timeToLive"); err != nil {
		return err
	}
	if v, ok := o.Get("body"); ok {
		if arr, ok := v.(*amf.Array); ok {
			m.Body = arr.Dense
		}
	}
	headers, err := o.Object("headers")
	if err != nil || headers == nil {
		return err
	}
	if m.Endpoint, err = headers.String(HeaderEndpoint); err != nil {
		return err
	}
	if m.DSId, err = headers.String(HeaderID); err != nil {
		return err
	}
	m.RequestTimeout, err = headers.Int32(HeaderRequestTimeout)
	return err
}

// ErrorMessage is the fault a remote service answers with. It is returned as an error by
// remoting calls.
type ErrorMessage struct {
	FaultCode     string
	FaultString   string
	FaultDetail   string
	CorrelationID string
	RootCause     amf.Value
	ExtendedData  amf.Value
}

func (e *ErrorMessage) Error() string {
	if e.FaultDetail != "" {
		return fmt.Sprintf("flex: %s: %s (%s)", e.FaultCode, e.FaultString, e.FaultDetail)
	}
	return fmt.Sprintf("flex: %s: %s", e.FaultCode, e.FaultString)
}

func (e *ErrorMessage) UnmarshalAMF(o *amf.Object) (err error) {
	if e.FaultCode, err = o.String("faultCode"); err != nil {
		return err
	}
	if e.FaultString, err = o.String("faultString"); err != nil {
		return err
	}
	if e.FaultDetail, err = o.String("faultDetail"); err != nil {
		return err
	}
	if e.CorrelationID, err = o.String("correlationId"); err != nil {
		return err
	}
	e.RootCause, _ = o.Get("rootCause")
	e.ExtendedData, _ = o.Get("extendedData")
	return nil
}

func (e *ErrorMessage) MarshalAMF() (amf.Value, error) {
	o := ErrorMessageSchema.NewObject().
		Set("faultCode", amf.String(e.FaultCode)).
		Set("faultString", amf.String(e.FaultString)).
		Set("faultDetail", amf.String(e.FaultDetail)).
		Set("correlationId", amf.String(e.CorrelationID))
	if e.RootCause != nil {
		o.Set("rootCause", e.RootCause)
	}
	if e.ExtendedData != nil {
		o.Set("extendedData", e.ExtendedData)
	}
	return o, nil
}

// Result unwraps the body of a remoting answer: the acknowledgement's body for a DSK, the
// fault as an error for an ErrorMessage, and v itself otherwise.
func Result(v amf.Value) (amf.Value, error) {
	switch t := v.(type) {
	case *AcknowledgeMessageExt:
		return t.Body, nil
	case *amf.Object:
		if fault, ok := t.Instance.(*ErrorMessage); ok {
			return nil, fault
		}
		if t.ClassName() == ErrorMessageClass {
			fault := &ErrorMessage{}
			if err := fault.UnmarshalAMF(t); err != nil {
				return nil, err
			}
			return nil, fault
		}
	}
	return v, nil
}

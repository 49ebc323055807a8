// Package flex holds the Flex messaging classes a BlazeDS-style RTMP endpoint exchanges:
// the externalizable collection wrappers, the small DS* message encodings and the
// RemotingMessage used to call a remote service.
package flex

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

// Class names as they appear on the wire.
const (
	ArrayCollectionClass       = "flex.messaging.io.ArrayCollection"
	ObjectProxyClass           = "flex.messaging.io.ObjectProxy"
	AcknowledgeMessageExtClass = "DSK"
	AsyncMessageExtClass       = "DSA"
	CommandMessageExtClass     = "DSC"
	RemotingMessageClass       = "flex.messaging.messages.RemotingMessage"
	ErrorMessageClass          = "flex.messaging.messages.ErrorMessage"
)

// Register installs every class of this package in reg.
func Register(reg *amf.Registry) error {
	externals := map[string]func() amf.Externalizable{
		ArrayCollectionClass:       func() amf.Externalizable { return &ArrayCollection{} },
		ObjectProxyClass:           func() amf.Externalizable { return &ObjectProxy{} },
		AcknowledgeMessageExtClass: func() amf.Externalizable { return &AcknowledgeMessageExt{} },
		AsyncMessageExtClass:       func() amf.Externalizable { return &AsyncMessageExt{} },
		CommandMessageExtClass:     func() amf.Externalizable { return &CommandMessageExt{} },
	}
	for name, f := range externals {
		if err := reg.RegisterExternal(name, f); err != nil {
			return errors.Wrap(err, "flex")
		}
	}
	if err := reg.Register(RemotingMessageSchema, func() amf.Unmarshaler { return &RemotingMessage{} }); err != nil {
		return errors.Wrap(err, "flex")
	}
	if err := reg.Register(ErrorMessageSchema, func() amf.Unmarshaler { return &ErrorMessage{} }); err != nil {
		return errors.Wrap(err, "flex")
	}
	return nil
}

// NewRegistry returns a registry with the classes of this package installed.
func NewRegistry() *amf.Registry {
	reg := amf.NewRegistry()
	if err := Register(reg); err != nil {
		// Only fails on duplicate names, which a fresh registry cannot have
		panic(err)
	}
	return reg
}

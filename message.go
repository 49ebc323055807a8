package rtmp

import "strconv"

type MessageType uint8

const (
	SetChunkSize MessageType = 1 + iota
	AbortMessage
	Acknowledgement
	UserControlMessage
	WindowAcknowledgementSize
	SetPeerBandwidth

	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

var messageTypeNames = map[MessageType]string{
	SetChunkSize:              "SetChunkSize",
	AbortMessage:              "Abort",
	Acknowledgement:           "Acknowledgement",
	UserControlMessage:        "UserControl",
	WindowAcknowledgementSize: "WindowAckSize",
	SetPeerBandwidth:          "SetPeerBandwidth",
	AudioMessage:              "Audio",
	VideoMessage:              "Video",
	DataMessageAMF3:           "DataAMF3",
	SharedObjectMessageAMF3:   "SharedObjectAMF3",
	CommandMessageAMF3:        "CommandAMF3",
	DataMessageAMF0:           "DataAMF0",
	SharedObjectMessageAMF0:   "SharedObjectAMF0",
	CommandMessageAMF0:        "CommandAMF0",
	AggregateMessage:          "Aggregate",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "MessageType(" + strconv.Itoa(int(t)) + ")"
}

// IsControl reports whether t is a protocol control message. Those travel on chunk
// stream 2 and message stream 0.
func (t MessageType) IsControl() bool {
	return t >= SetChunkSize && t <= SetPeerBandwidth
}

// Message is one complete logical message. The timestamp is absolute; chunk headers carry
// it as a delta where they can.
type Message struct {
	Type          MessageType
	ChunkStreamID uint32
	StreamID      uint32
	Timestamp     uint32
	Payload       []byte
}

package rtmp

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/rand"
)

const (
	RtmpVersion3 = 3
	// HandshakeSize is the length of C1, S1, C2 and S2.
	HandshakeSize = 1536
	// Bytes 0-3 of C1/S1 hold the sender's epoch and bytes 4-7 are zero; the rest is random.
	handshakeRandomOffset = 8
)

// HandshakeFunc performs one side of the handshake on a fresh connection.
type HandshakeFunc func(rw io.ReadWriter) (*Clock, error)

// Clock produces the timestamps of outgoing messages, relative to the epoch agreed on in
// the handshake.
type Clock struct {
	epoch uint32
	start time.Time
}

// NewClock returns a clock that reads epoch now.
func NewClock(epoch uint32) *Clock {
	return &Clock{epoch: epoch, start: time.Now()}
}

// Epoch returns the timestamp the clock started at.
func (c *Clock) Epoch() uint32 {
	return c.epoch
}

// Timestamp returns the epoch plus the milliseconds elapsed since the handshake. It wraps
// around like every RTMP timestamp.
func (c *Clock) Timestamp() uint32 {
	return c.epoch + c.Elapsed()
}

// Elapsed returns the milliseconds elapsed since the handshake.
func (c *Clock) Elapsed() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

// ClientHandshake sends C0 and C1, reads S0 and S1, answers with C2 and checks that S2
// echoes C1. The returned clock starts at S1's epoch.
func ClientHandshake(rw io.ReadWriter) (*Clock, error) {
	var c0c1 [1 + HandshakeSize]byte
	// c0
	c0c1[0] = RtmpVersion3
	// c1: the time and zero fields stay zeroed
	c1 := c0c1[1:]
	if err := rand.GenerateCryptoSafeRandomData(c1[handshakeRandomOffset:]); err != nil {
		return nil, err
	}
	if err := send(rw, c0c1[:]); err != nil {
		return nil, errors.Wrap(err, "handshake: send C0+C1")
	}

	if _, err := readVersion(rw, "S0"); err != nil {
		return nil, err
	}
	var s1 [HandshakeSize]byte
	if _, err := io.ReadFull(rw, s1[:]); err != nil {
		return nil, errors.Wrap(unexpected(err), "handshake: read S1")
	}
	clock := NewClock(binary.BigEndian.Uint32(s1[0:4]))

	// c2 echoes s1 with our time of reading it in bytes 4-7
	c2 := s1
	binary.BigEndian.PutUint32(c2[4:8], clock.Elapsed())
	if err := send(rw, c2[:]); err != nil {
		return nil, errors.Wrap(err, "handshake: send C2")
	}

	var s2 [HandshakeSize]byte
	if _, err := io.ReadFull(rw, s2[:]); err != nil {
		return nil, errors.Wrap(unexpected(err), "handshake: read S2")
	}
	if err := compareEcho("S2", c1, s2[:]); err != nil {
		return nil, err
	}
	return clock, nil
}

// ServerHandshake reads C0 and C1, sends S0, S1 and an S2 echoing C1, then checks that C2
// echoes S1. The returned clock starts at C1's epoch.
func ServerHandshake(rw io.ReadWriter) (*Clock, error) {
	if _, err := readVersion(rw, "C0"); err != nil {
		return nil, err
	}
	var c1 [HandshakeSize]byte
	if _, err := io.ReadFull(rw, c1[:]); err != nil {
		return nil, errors.Wrap(unexpected(err), "handshake: read C1")
	}
	clock := NewClock(binary.BigEndian.Uint32(c1[0:4]))

	var s0s1s2 [1 + 2*HandshakeSize]byte
	// s0 message is stored in byte 0
	s0s1s2[0] = RtmpVersion3
	// s1 message is stored in bytes 1-1536. The s1 time field stays zeroed, since we're sending our time as 0
	s1 := s0s1s2[1 : 1+HandshakeSize]
	if err := rand.GenerateCryptoSafeRandomData(s1[handshakeRandomOffset:]); err != nil {
		return nil, err
	}
	// s2 message is stored in bytes 1537-3073
	copy(s0s1s2[1+HandshakeSize:], c1[:])
	if err := send(rw, s0s1s2[:]); err != nil {
		return nil, errors.Wrap(err, "handshake: send S0+S1+S2")
	}

	var c2 [HandshakeSize]byte
	if _, err := io.ReadFull(rw, c2[:]); err != nil {
		return nil, errors.Wrap(unexpected(err), "handshake: read C2")
	}
	if err := compareEcho("C2", s1, c2[:]); err != nil {
		return nil, err
	}
	return clock, nil
}

func readVersion(r io.Reader, stage string) (byte, error) {
	var v [1]byte
	if _, err := io.ReadFull(r, v[:]); err != nil {
		return 0, errors.Wrapf(unexpected(err), "handshake: read %s", stage)
	}
	if v[0] != RtmpVersion3 {
		return v[0], &ProtocolMismatchError{Stage: stage, Want: RtmpVersion3, Got: v[0]}
	}
	return v[0], nil
}

// compareEcho checks the random part of an echo against what we sent.
func compareEcho(stage string, sent, echo []byte) error {
	for i := handshakeRandomOffset; i < HandshakeSize; i++ {
		if sent[i] != echo[i] {
			return &ProtocolMismatchError{Stage: stage, Offset: i, Want: sent[i], Got: echo[i]}
		}
	}
	return nil
}

func send(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

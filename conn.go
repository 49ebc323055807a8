package rtmp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ossrs/go-oryx-lib/kxps"
	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/flex"
	"github.com/torresjeff/pvprtmp/config"
	"github.com/torresjeff/pvprtmp/rand"
	"go.uber.org/zap"
)

type CommandHandler func(c *Conn, cmd *Command)
type NotifyHandler func(c *Conn, n *Notify)
type MessageHandler func(c *Conn, m *Message)

// ErrorCallback is called once, with the error that ended the connection.
type ErrorCallback func(err error)

// InvokeError is returned by Invoke when the peer answered with _error.
type InvokeError struct {
	Command *Command
}

func (e *InvokeError) Error() string {
	if info, ok := e.Command.Arg(0).(*amf.Object); ok {
		if desc, err := info.String("description"); err == nil {
			return "rtmp: invoke failed: " + desc
		}
	}
	return "rtmp: invoke failed"
}

// ConnConfig tunes a connection. Zero fields take the defaults of the config package.
type ConnConfig struct {
	Logger *zap.Logger
	// Registry resolves class names on this connection. nil gets a registry with the Flex
	// messaging classes.
	Registry *amf.Registry
	// ChunkSize is announced to the peer right after the handshake when it differs from
	// the protocol default.
	ChunkSize uint32
	// WindowAckSize is announced to the peer right after the handshake.
	WindowAckSize uint32
	InvokeTimeout time.Duration
	BufferSize    int

	OnCommand CommandHandler
	OnNotify  NotifyHandler
	// OnMessage receives audio, video, aggregate and shared object messages.
	OnMessage MessageHandler
	OnError   ErrorCallback
}

// Stats is a snapshot of a connection's traffic.
type Stats struct {
	BytesIn, BytesOut uint64

	// Rates in kbps. They stay zero until the first 10s sample has been taken.
	InKbps10s, OutKbps10s float64
	InKbpsAvg, OutKbpsAvg float64
}

type invokeResult struct {
	cmd *Command
	err error
}

type asyncSend struct {
	cmd     *Command
	onError ErrorCallback
}

// Conn is an established RTMP connection. One goroutine reads and dispatches messages;
// any number of goroutines may send.
type Conn struct {
	id     string
	nc     net.Conn
	logger *zap.Logger
	cfg    ConnConfig
	clock  *Clock

	reader *Reader
	writer *Writer
	chunks *ChunkReader
	out    *ChunkWriter
	codec  *Codec

	// Held across AMF encoding and chunk writing so the peer sees messages in the order
	// they took table entries.
	sendMu sync.Mutex

	mu      sync.Mutex
	nextTx  float64
	pending map[float64]chan invokeResult
	err     error

	// Read-held while queueing on async; writeLoop takes it to drain the queue on close.
	asyncMu  sync.RWMutex
	async    chan asyncSend
	closed   chan struct{}
	failOnce sync.Once

	peerWindow uint32
	lastAck    uint64

	statsMu         sync.Mutex
	inKbps, outKbps kxps.Kbps
	statsOn         bool
}

// NewConn performs handshake on nc and starts serving the connection. nc is closed when
// the handshake fails.
func NewConn(nc net.Conn, handshake HandshakeFunc, cfg ConnConfig) (*Conn, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = flex.NewRegistry()
	}
	if cfg.InvokeTimeout == 0 {
		cfg.InvokeTimeout = 30 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = config.BuffioSize
	}

	reader, _ := NewReader(bufio.NewReaderSize(nc, cfg.BufferSize))
	writer, _ := NewWriter(bufio.NewWriterSize(nc, cfg.BufferSize))
	c := &Conn{
		id:      rand.GenerateUuid(),
		nc:      nc,
		cfg:     cfg,
		reader:  reader,
		writer:  writer,
		chunks:  NewChunkReader(reader),
		out:     NewChunkWriter(writer),
		codec:   NewCodec(cfg.Registry),
		nextTx:  1,
		pending: make(map[float64]chan invokeResult),
		async:   make(chan asyncSend, 64),
		closed:  make(chan struct{}),
	}
	c.logger = cfg.Logger.Named("conn").With(zap.String("conn_id", c.id), zap.String("remote", nc.RemoteAddr().String()))

	clock, err := handshake(handshakeRW{reader, writer})
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "rtmp: handshake")
	}
	c.clock = clock
	c.logger.Debug("[conn] handshake done", zap.Uint32("epoch", clock.Epoch()))

	c.inKbps = kxps.NewKbps(nil, reader)
	c.outKbps = kxps.NewKbps(nil, writer)
	if err := c.inKbps.Start(); err == nil {
		if err := c.outKbps.Start(); err == nil {
			c.statsOn = true
		}
	}

	go c.readLoop()
	go c.writeLoop()

	if cfg.WindowAckSize != 0 {
		if err := c.WriteMessage(NewWindowAckSize(cfg.WindowAckSize), 0); err != nil {
			return nil, err
		}
	}
	if cfg.ChunkSize != 0 && cfg.ChunkSize != DefaultChunkSize {
		msg, err := NewSetChunkSize(cfg.ChunkSize)
		if err != nil {
			c.Close()
			return nil, err
		}
		if err := c.WriteMessage(msg, 0); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type handshakeRW struct {
	*Reader
	*Writer
}

// ID returns the identifier the connection logs with.
func (c *Conn) ID() string {
	return c.id
}

// Clock returns the clock agreed on in the handshake.
func (c *Conn) Clock() *Clock {
	return c.clock
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Registry returns the class registry of the connection.
func (c *Conn) Registry() *amf.Registry {
	return c.cfg.Registry
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that ended the connection, or nil while it is up.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the connection down. Pending invokes fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.fail(ErrConnClosed)
	return nil
}

// WriteMessage sends a raw message on message stream msid. Its timestamp is set from the
// connection clock.
func (c *Conn) WriteMessage(m *Message, msid uint32) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.writeLocked(m, msid)
}

func (c *Conn) writeLocked(m *Message, msid uint32) error {
	if err := c.Err(); err != nil {
		return err
	}
	m.Timestamp = c.clock.Timestamp()
	csid := m.ChunkStreamID
	if csid == 0 {
		csid = CommandChannel
	}
	if err := c.out.WriteMessage(m, csid, msid); err != nil {
		err = errors.Wrapf(err, "rtmp: write %s", m.Type)
		c.fail(err)
		return err
	}
	return nil
}

// Send writes cmd and returns once it is on the wire. An encoding failure is returned
// without harming the connection.
func (c *Conn) Send(cmd *Command) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	m, err := c.codec.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	c.logger.Debug("[conn] send command", zap.String("name", cmd.Name), zap.Float64("tx_id", cmd.TransactionID))
	return c.writeLocked(m, 0)
}

// SendAsync queues cmd and returns at once. Queued commands are written in order;
// onError, if not nil, is called when cmd could not be sent.
func (c *Conn) SendAsync(cmd *Command, onError ErrorCallback) {
	c.asyncMu.RLock()
	queued := false
	select {
	case <-c.closed:
	default:
		select {
		case c.async <- asyncSend{cmd: cmd, onError: onError}:
			queued = true
		case <-c.closed:
		}
	}
	c.asyncMu.RUnlock()
	if !queued && onError != nil {
		onError(c.Err())
	}
}

// Notify writes a data message.
func (c *Conn) Notify(n *Notify) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	m, err := c.codec.EncodeNotify(n)
	if err != nil {
		return err
	}
	return c.writeLocked(m, 0)
}

// Invoke calls a remote procedure and waits for its _result or _error. The answer to
// _error is returned along with an *InvokeError.
func (c *Conn) Invoke(ctx context.Context, cmd *Command) (*Command, error) {
	ch := make(chan invokeResult, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	cmd.TransactionID = c.nextTx
	c.nextTx++
	c.pending[cmd.TransactionID] = ch
	c.mu.Unlock()

	if err := c.Send(cmd); err != nil {
		c.forget(cmd.TransactionID)
		return nil, err
	}

	timer := time.NewTimer(c.cfg.InvokeTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.cmd.Name == CommandError {
			return res.cmd, &InvokeError{Command: res.cmd}
		}
		return res.cmd, nil
	case <-ctx.Done():
		c.forget(cmd.TransactionID)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(cmd.TransactionID)
		return nil, errors.Errorf("rtmp: invoke %q (tx %v) timed out after %v", cmd.Name, cmd.TransactionID, c.cfg.InvokeTimeout)
	}
}

// InvokeRemote calls operation on a Flex remoting destination and returns the body of the
// acknowledgement. A fault comes back as a *flex.ErrorMessage.
func (c *Conn) InvokeRemote(ctx context.Context, destination, operation string, body ...amf.Value) (amf.Value, error) {
	rm := flex.NewRemotingMessage(destination, operation, body...)
	rm.DSId = c.id
	req, err := rm.MarshalAMF()
	if err != nil {
		return nil, err
	}
	resp, err := c.Invoke(ctx, &Command{Object: amf.Null{}, Args: []amf.Value{req}, AMF3: true})
	var ie *InvokeError
	if err != nil && !errors.As(err, &ie) {
		return nil, err
	}
	v, ferr := flex.Result(resp.Arg(0))
	if ferr == nil && ie != nil {
		return nil, ie
	}
	return v, ferr
}

// Stats returns the traffic counters of the connection.
func (c *Conn) Stats() Stats {
	s := Stats{BytesIn: c.reader.TotalBytes(), BytesOut: c.writer.TotalBytes()}
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if c.statsOn {
		s.InKbps10s, s.OutKbps10s = c.inKbps.Kbps10s(), c.outKbps.Kbps10s()
		s.InKbpsAvg, s.OutKbpsAvg = c.inKbps.Average(), c.outKbps.Average()
	}
	return s
}

func (c *Conn) forget(tx float64) {
	c.mu.Lock()
	delete(c.pending, tx)
	c.mu.Unlock()
}

// fail ends the connection with err. Only the first call has an effect.
func (c *Conn) fail(err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		pending := c.pending
		c.pending = make(map[float64]chan invokeResult)
		c.mu.Unlock()

		close(c.closed)
		c.nc.Close()
		c.statsMu.Lock()
		if c.statsOn {
			c.statsOn = false
			c.inKbps.Close()
			c.outKbps.Close()
		}
		c.statsMu.Unlock()
		for _, ch := range pending {
			ch <- invokeResult{err: err}
		}

		if err == ErrConnClosed {
			c.logger.Info("[conn] closed")
		} else {
			c.logger.Error("[conn] connection failed", zap.Error(err), zap.Bool("protocol", IsProtocolError(err)))
		}
		if c.cfg.OnError != nil {
			// fail may run with the send lock held
			go c.cfg.OnError(err)
		}
	})
}

func (c *Conn) readLoop() {
	for {
		m, err := c.chunks.ReadMessage()
		if err != nil {
			c.fail(errors.Wrap(err, "rtmp: read"))
			return
		}
		if err := c.acknowledge(); err != nil {
			return
		}
		if err := c.dispatch(m); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case s := <-c.async:
			if err := c.Send(s.cmd); err != nil && s.onError != nil {
				s.onError(err)
			}
		case <-c.closed:
			c.drainAsync()
			return
		}
	}
}

// drainAsync fails every queued command. Once it holds asyncMu no SendAsync can queue.
func (c *Conn) drainAsync() {
	var dropped []asyncSend
	c.asyncMu.Lock()
	for done := false; !done; {
		select {
		case s := <-c.async:
			dropped = append(dropped, s)
		default:
			done = true
		}
	}
	c.asyncMu.Unlock()

	err := c.Err()
	for _, s := range dropped {
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// acknowledge sends an Acknowledgement each time a window's worth of bytes came in.
func (c *Conn) acknowledge() error {
	window := atomic.LoadUint32(&c.peerWindow)
	if window == 0 {
		return nil
	}
	total := c.reader.TotalBytes()
	if total-c.lastAck < uint64(window) {
		return nil
	}
	c.lastAck = total
	return c.WriteMessage(NewAcknowledgement(uint32(total)), 0)
}

func (c *Conn) dispatch(m *Message) error {
	switch m.Type {
	case SetChunkSize, AbortMessage:
		// Applied by the chunk reader
		c.logger.Debug("[conn] control", zap.Stringer("type", m.Type), zap.Uint32("chunk_size", c.chunks.ChunkSize()))
	case Acknowledgement:
		seq, err := ParseAcknowledgement(m)
		if err != nil {
			return err
		}
		c.logger.Debug("[conn] peer acknowledged", zap.Uint32("sequence", seq))
	case WindowAcknowledgementSize:
		size, err := ParseWindowAckSize(m)
		if err != nil {
			return err
		}
		atomic.StoreUint32(&c.peerWindow, size)
	case SetPeerBandwidth:
		bw, err := ParseSetPeerBandwidth(m)
		if err != nil {
			return err
		}
		c.logger.Debug("[conn] peer bandwidth", zap.Uint32("size", bw.Size), zap.Uint8("limit", bw.Limit))
		if bw.Limit != LimitDynamic && c.cfg.WindowAckSize != bw.Size {
			return c.WriteMessage(NewWindowAckSize(bw.Size), 0)
		}
	case UserControlMessage:
		uc, err := ParseUserControl(m)
		if err != nil {
			return err
		}
		if uc.Event == PingRequest {
			return c.WriteMessage(NewUserControl(UserControl{Event: PingResponse, Data: uc.Data}), 0)
		}
	case CommandMessageAMF0, CommandMessageAMF3:
		cmd, err := c.codec.DecodeCommand(m)
		if cmd == nil {
			return err
		}
		if err != nil {
			// The command was read completely; only the value failed to bind
			c.logger.Warn("[conn] command argument rejected", zap.String("name", cmd.Name), zap.Error(err))
		}
		c.handleCommand(cmd)
	case DataMessageAMF0, DataMessageAMF3:
		n, err := c.codec.DecodeNotify(m)
		if n == nil {
			return err
		}
		if c.cfg.OnNotify != nil {
			c.cfg.OnNotify(c, n)
		}
	case AudioMessage, VideoMessage, AggregateMessage, SharedObjectMessageAMF0, SharedObjectMessageAMF3:
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(c, m)
		}
	default:
		return errors.Wrapf(ErrUnknownMessageType, "%s on chunk stream %d", m.Type, m.ChunkStreamID)
	}
	return nil
}

func (c *Conn) handleCommand(cmd *Command) {
	if cmd.Name == CommandResult || cmd.Name == CommandError {
		c.mu.Lock()
		ch, ok := c.pending[cmd.TransactionID]
		delete(c.pending, cmd.TransactionID)
		c.mu.Unlock()
		if ok {
			ch <- invokeResult{cmd: cmd}
			return
		}
		c.logger.Warn("[conn] answer to unknown invoke", zap.Float64("tx_id", cmd.TransactionID))
		return
	}
	if c.cfg.OnCommand == nil {
		return
	}
	if cmd.Name == CommandReceive {
		// Pushed messages may call back into the connection and wait on an invoke
		go c.cfg.OnCommand(c, cmd)
		return
	}
	c.cfg.OnCommand(c, cmd)
}

package rtmp

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/config"
	"go.uber.org/zap"
)

const NetConnectionSuccess = "NetConnection.Connect.Success"

// Server accepts RTMP connections. It answers connect commands itself and hands every
// other command to OnCommand.
type Server struct {
	Addr   string
	Logger *zap.Logger
	// NewRegistry returns the class registry of each accepted connection. nil gives the
	// Flex messaging classes.
	NewRegistry func() *amf.Registry
	ChunkSize   uint32

	// OnConnect, when set, answers connect commands in place of the default _result. The
	// window and bandwidth control messages have been sent by then.
	OnConnect func(c *Conn, cmd *Command)
	OnCommand CommandHandler
	OnNotify  NotifyHandler
	OnMessage MessageHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	closed   bool
}

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("rtmp: server closed")

// ListenAndServe listens on s.Addr, ":1935" when empty, and serves connections until Close.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":" + config.DefaultPort
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "[server] listen on %s", addr)
	}
	return s.Serve(l)
}

// Serve accepts connections on l. Each one is handshaken and served on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	logger := s.logger()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	if s.conns == nil {
		s.conns = make(map[*Conn]struct{})
	}
	s.mu.Unlock()

	logger.Info("[server] listening", zap.String("addr", l.Addr().String()))
	for {
		nc, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return errors.Wrap(err, "[server] accept")
		}
		logger.Info("[server] accepted incoming connection", zap.String("remote", nc.RemoteAddr().String()))
		go s.serveConn(nc)
	}
}

// ListenAddr returns the address the server listens on, once Serve has been called.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	for c := range conns {
		c.Close()
	}
	return err
}

func (s *Server) serveConn(nc net.Conn) {
	logger := s.logger()
	var reg *amf.Registry
	if s.NewRegistry != nil {
		reg = s.NewRegistry()
	}
	var conn *Conn
	done := make(chan struct{})
	c, err := NewConn(nc, ServerHandshake, ConnConfig{
		Logger:    logger,
		Registry:  reg,
		ChunkSize: s.ChunkSize,
		OnCommand: func(c *Conn, cmd *Command) {
			if cmd.Name == CommandConnect {
				s.onConnect(c, cmd)
				return
			}
			if s.OnCommand != nil {
				s.OnCommand(c, cmd)
			}
		},
		OnNotify:  s.OnNotify,
		OnMessage: s.OnMessage,
		OnError: func(err error) {
			<-done
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		},
	})
	if err != nil {
		close(done)
		logger.Error("[server] handshake failed", zap.String("remote", nc.RemoteAddr().String()), zap.Error(err))
		return
	}
	conn = c
	s.mu.Lock()
	if s.conns == nil {
		s.mu.Unlock()
		close(done)
		c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	close(done)
	logger.Info("[server] session started", zap.String("conn_id", c.ID()))
}

func (s *Server) onConnect(c *Conn, cmd *Command) {
	if err := c.WriteMessage(NewWindowAckSize(config.DefaultClientWindowSize), 0); err != nil {
		return
	}
	if err := c.WriteMessage(NewSetPeerBandwidth(config.DefaultClientWindowSize, LimitDynamic), 0); err != nil {
		return
	}
	if s.OnConnect != nil {
		s.OnConnect(c, cmd)
		return
	}
	properties := amf.NewObject().
		Set("fmsVer", amf.String(config.FlashMediaServerVersion)).
		Set("capabilities", amf.Number(config.Capabilities)).
		Set("mode", amf.Number(config.Mode))
	information := amf.NewObject().
		Set("code", amf.String(NetConnectionSuccess)).
		Set("level", amf.String("status")).
		Set("description", amf.String("Connection accepted.")).
		Set("objectEncoding", amf.Number(objectEncodingAMF3))
	c.Reply(cmd, properties, information)
}

// Reply answers cmd with _result. The first value becomes the command object.
func (c *Conn) Reply(cmd *Command, object amf.Value, args ...amf.Value) error {
	return c.Send(&Command{Name: CommandResult, TransactionID: cmd.TransactionID, Object: object, Args: args, AMF3: cmd.AMF3})
}

// ReplyError answers cmd with _error.
func (c *Conn) ReplyError(cmd *Command, object amf.Value, args ...amf.Value) error {
	return c.Send(&Command{Name: CommandError, TransactionID: cmd.TransactionID, Object: object, Args: args, AMF3: cmd.AMF3})
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.Named("server")
}

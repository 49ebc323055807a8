package rtmp

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/config"
	"go.uber.org/zap"
)

// Codecs a client announces in its connect command.
const (
	audioCodecsAll     = 3191
	videoCodecsAll     = 252
	videoFunctionSeek  = 1
	objectEncodingAMF3 = 3
)

// Client dials RTMP servers.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
	// Registry is shared by every connection the client opens. nil gives each connection
	// its own registry with the Flex messaging classes.
	Registry *amf.Registry

	OnCommand CommandHandler
	OnNotify  NotifyHandler
	OnMessage MessageHandler
	OnError   ErrorCallback
}

// Dial opens a connection to cfg.Address and performs the handshake.
func Dial(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Conn, error) {
	c := &Client{Config: cfg, Logger: logger}
	return c.Dial(ctx)
}

// Dial opens a connection and performs the handshake. ctx bounds both.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	cfg := c.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Address == "" {
		return nil, errors.New("rtmp: dial: no address")
	}
	addr := cfg.HostPort()

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	var nc net.Conn
	var err error
	if cfg.TLS {
		host, _, _ := net.SplitHostPort(addr)
		td := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: host, InsecureSkipVerify: cfg.InsecureSkipVerify},
		}
		nc, err = td.DialContext(ctx, "tcp", addr)
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "rtmp: dial %s", addr)
	}
	logger.Info("[client] connected", zap.String("addr", addr), zap.Bool("tls", cfg.TLS))

	// The handshake blocks on plain reads, so bound it with a deadline
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}
	conn, err := NewConn(nc, ClientHandshake, ConnConfig{
		Logger:        logger,
		Registry:      c.Registry,
		ChunkSize:     cfg.ChunkSize,
		WindowAckSize: cfg.WindowAckSize,
		InvokeTimeout: cfg.InvokeTimeout,
		BufferSize:    cfg.BufferSize,
		OnCommand:     c.OnCommand,
		OnNotify:      c.OnNotify,
		OnMessage:     c.OnMessage,
		OnError:       c.OnError,
	})
	if err != nil {
		return nil, err
	}
	nc.SetDeadline(time.Time{})
	return conn, nil
}

// ConnectParams returns the command object of a connect command for cfg.
func ConnectParams(cfg *config.Config) *amf.Object {
	return amf.NewObject().
		Set("app", amf.String(cfg.App)).
		Set("flashVer", amf.String(cfg.FlashVersion)).
		Set("swfUrl", amf.String(cfg.SwfURL)).
		Set("tcUrl", amf.String(cfg.TCURL())).
		Set("fpad", amf.Bool(false)).
		Set("capabilities", amf.Number(config.Capabilities)).
		Set("audioCodecs", amf.Number(audioCodecsAll)).
		Set("videoCodecs", amf.Number(videoCodecsAll)).
		Set("videoFunction", amf.Number(videoFunctionSeek)).
		Set("pageUrl", amf.String(cfg.PageURL)).
		Set("objectEncoding", amf.Number(objectEncodingAMF3))
}

// Connect sends the connect command with params and waits for the answer. args follow the
// command object, as some servers expect login data there.
func (c *Conn) Connect(ctx context.Context, params *amf.Object, args ...amf.Value) (*Command, error) {
	resp, err := c.Invoke(ctx, &Command{Name: CommandConnect, Object: params, Args: args})
	if err != nil {
		return resp, err
	}
	if info, ok := resp.Arg(0).(*amf.Object); ok {
		code, _ := info.String("code")
		c.logger.Info("[conn] connected", zap.String("code", code))
	}
	return resp, nil
}

// Command rtmpc connects to an RTMP server described by a YAML config, sends connect and,
// optionally, one remoting call whose arguments are the remaining command line strings.
//
//	rtmpc -config client.yaml -destination summonerService -operation getSummonerByName name
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/davecgh/go-spew/spew"
	rtmp "github.com/torresjeff/pvprtmp"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	addr := flag.String("addr", "", "server address, overrides the configuration")
	destination := flag.String("destination", "", "remoting destination to call after connecting")
	operation := flag.String("operation", "", "operation to call on the destination")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if *debug {
		cfg.Debug = true
	}

	var logger *zap.Logger
	var err error
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, *destination, *operation, flag.Args()); err != nil {
		logger.Fatal("rtmpc failed", zap.Error(err), zap.Bool("protocol", rtmp.IsProtocolError(err)))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, destination, operation string, args []string) error {
	client := &rtmp.Client{
		Config: cfg,
		Logger: logger,
		OnCommand: func(c *rtmp.Conn, cmd *rtmp.Command) {
			logger.Info("pushed command", zap.String("name", cmd.Name), zap.Int("args", len(cmd.Args)))
		},
	}
	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := conn.Connect(ctx, rtmp.ConnectParams(cfg))
	if err != nil {
		return err
	}
	spew.Dump(amf.ToNative(resp.Arg(0)))

	if destination != "" && operation != "" {
		body := make([]amf.Value, len(args))
		for i, a := range args {
			body[i] = amf.String(a)
		}
		result, err := conn.InvokeRemote(ctx, destination, operation, body...)
		if err != nil {
			return err
		}
		spew.Dump(amf.ToNative(result))
	}

	stats := conn.Stats()
	logger.Info("done", zap.Uint64("bytes_in", stats.BytesIn), zap.Uint64("bytes_out", stats.BytesOut))
	return nil
}

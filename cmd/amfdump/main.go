// Command amfdump decodes hex encoded AMF0 or AMF3 payloads and prints the values.
//
//	echo '08 00000002 0001 61 00 3ff0000000000000 0001 62 02 0001 78 000009' | amfdump
//	amfdump -format amf3 -native 0a0b01036102047f01
package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf0"
	"github.com/torresjeff/pvprtmp/amf/amf3"
	"github.com/torresjeff/pvprtmp/amf/flex"
	"go.uber.org/zap"
)

func main() {
	format := flag.String("format", "amf0", "encoding of the payload: amf0 or amf3")
	native := flag.Bool("native", false, "print plain Go values instead of AMF values")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	input, err := readInput(flag.Args(), os.Stdin)
	if err != nil {
		logger.Fatal("read input", zap.Error(err))
	}
	logger.Debug("decoding", zap.String("format", *format), zap.Int("bytes", len(input)))

	values, err := decode(*format, input)
	for i, v := range values {
		fmt.Printf("#%d ", i)
		if *native {
			spew.Dump(amf.ToNative(v))
		} else {
			spew.Dump(v)
		}
	}
	if err != nil {
		logger.Fatal("decode", zap.Error(err), zap.Bool("protocol", amf.IsProtocolError(err)))
	}
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

// readInput joins the arguments, or stdin when there are none, and decodes them as hex.
// Whitespace is ignored.
func readInput(args []string, stdin io.Reader) ([]byte, error) {
	text := strings.Join(args, "")
	if len(args) == 0 {
		b, err := io.ReadAll(bufio.NewReader(stdin))
		if err != nil {
			return nil, err
		}
		text = string(b)
	}
	text = strings.Join(strings.Fields(text), "")
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, errors.Wrap(err, "input is not hex")
	}
	return b, nil
}

func decode(format string, input []byte) ([]amf.Value, error) {
	reg := flex.NewRegistry()
	r := bytes.NewReader(input)
	switch format {
	case "amf0":
		return amf0.NewDecoder(reg, amf3.NewDecoder(reg)).DecodeAll(r)
	case "amf3":
		dec := amf3.NewDecoder(reg)
		var values []amf.Value
		for {
			v, err := dec.Decode(r)
			if err == io.EOF {
				return values, nil
			}
			if v == nil {
				return values, err
			}
			values = append(values, v)
			if err != nil {
				return values, err
			}
		}
	default:
		return nil, errors.Errorf("unknown format %q", format)
	}
}

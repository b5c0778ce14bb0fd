package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/swscale"
)

var (
	host    = flag.String("host", "http://localhost:8711", "scale http api address")
	timeout = flag.Duration("timeout", 2*time.Second, "request timeout")
)

const usage = `usage: scalectl [-host url] <command> [value]

commands:
  weight                 print the last reading
  tare                   zero the scale with the current load
  reset                  power cycle the converter
  offset [value]         print or set the offset
  reference-unit [value] print or set the reference unit
  times [value]          print or set the number of readings per sample
  gain [value]           print or set the gain (128, 64 or 32)
  params                 print all calibration parameters
  import <file>          load calibration parameters from a JSON file
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	rs := &swscale.RemoteScale{Host: *host, Timeout: *timeout}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, rs, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Fatal("scalectl failed", "command", flag.Arg(0), "err", err)
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
	}
}

func run(ctx context.Context, rs *swscale.RemoteScale, command string, args []string) (interface{}, error) {
	switch command {
	case "weight":
		return rs.Reading(ctx)
	case "tare":
		offset, err := rs.Tare(ctx)
		return map[string]float64{"offset": offset}, err
	case "reset":
		return nil, rs.ForceReset(ctx)
	case "params":
		return rs.Parameters(ctx)
	case "import":
		if len(args) != 1 {
			return nil, errors.New("import needs a file path")
		}
		file, err := os.Open(args[0])
		if err != nil {
			return nil, errors.Wrap(err, "failed to open parameter file")
		}
		defer file.Close()
		return rs.ImportParameters(ctx, file)
	case "offset", "reference-unit", "times", "gain":
		if len(args) == 0 {
			return rs.Parameters(ctx)
		}
		return nil, set(ctx, rs, command, args[0])
	}

	return nil, errors.Errorf("unknown command %s", command)
}

func set(ctx context.Context, rs *swscale.RemoteScale, command, value string) error {
	switch command {
	case "offset", "reference-unit":
		number, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", command)
		}
		if command == "offset" {
			return rs.SetOffset(ctx, number)
		}
		return rs.SetReferenceUnit(ctx, number)
	}

	number, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", command)
	}
	if command == "times" {
		return rs.SetTimes(ctx, number)
	}
	return rs.SetGain(ctx, number)
}

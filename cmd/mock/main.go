package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/swscale"
	"github.com/hubertat/swscale/drivers"
	"github.com/hubertat/swscale/hx711"
)

var (
	Version string
	Build   string

	httpAddr = flag.String("http", ":8711", "http api address")
	hkPin    = flag.String("hk-pin", "", "HomeKit pin (8 digits), empty disables HomeKit")
	baseline = flag.Int("baseline", 84000, "simulated raw reading with nothing on the scale")
	noise    = flag.Int("noise", 40, "simulated raw noise amplitude")
	wobble   = flag.Duration("load-every", 10*time.Second, "interval of simulated load changes, 0 disables")
)

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)

	log.Info("swscale started", "version", Version)
	log.Info("mock instance for testing puproses, should work on MacOs")

	chip := &drivers.MockHx711{Baseline: int32(*baseline), Noise: int32(*noise)}

	sc := &swscale.Scale{
		Name:          "swscale-mock",
		Sensor:        hx711.Config{DataPin: 5, ClockPin: 6, Times: 5, ReferenceUnit: 0.01},
		ParameterFile: "./mock_parameters.json",
		HttpAddr:      *httpAddr,
		HkPin:         *hkPin,
		HkDirectory:   "./mock_homekit",
		FakeDriver:    chip,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("will init swscale drivers...")
	err := sc.InitDrivers(ctx)
	defer sc.Close()
	if err != nil {
		panic(err)
	}
	log.Info("will init hx711 sensor...")
	err = sc.InitSensor()
	if err != nil {
		panic(err)
	}

	sc.PrintIoStatus(os.Stdout)

	if *wobble > 0 {
		go simulateLoad(ctx, chip, *wobble)
	}

	err = sc.Start(ctx)
	if err != nil {
		panic(err)
	}

	if len(sc.HkPin) == 8 {
		go func() {
			log.Error("HomeKit stopped", "err", sc.StartHomeKit(ctx, "mock: "+Version))
		}()
	}

	err = sc.StartHttp(ctx)
	if err != nil {
		log.Error("http api stopped", "err", err)
	}
}

// simulateLoad puts a weight on the scale and takes it off again.
func simulateLoad(ctx context.Context, chip *drivers.MockHx711, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	loads := []int32{0, 25000, 50000, 0, 12500}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load := loads[i%len(loads)]
			log.Debug("simulated load changed", "load", load)
			chip.SetLoad(load)
		}
	}
}

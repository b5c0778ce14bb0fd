package swscale

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeAuthor = "github.com/hubertat"

// Switches flip back off after this long, they act as push buttons.
const homeKitSwitchRelease = time.Second

const (
	homeKitTareId  = 2
	homeKitResetId = 3
)

// pushSwitch returns a switch accessory that runs action when turned on and
// turns itself off again.
func pushSwitch(name, serial string, id uint64, action func()) *accessory.Switch {
	sw := accessory.NewSwitch(accessory.Info{
		Name:         name,
		SerialNumber: serial,
		Manufacturer: homeKitBridgeAuthor,
	})
	sw.Id = id
	sw.Switch.On.OnValueRemoteUpdate(func(on bool) {
		if !on {
			return
		}
		action()
		time.AfterFunc(homeKitSwitchRelease, func() {
			sw.Switch.On.SetValue(false)
		})
	})
	return sw
}

func (sc *Scale) GetHkAccessories() []*accessory.A {
	tare := pushSwitch("Tare", "hx711:tare", homeKitTareId, func() {
		sc.getLogger().Info("tare from HomeKit")
		sc.tare()
	})
	reset := pushSwitch("Reset", "hx711:reset", homeKitResetId, func() {
		sc.getLogger().Info("reset from HomeKit")
		sc.sensor.ForceReset()
	})

	return []*accessory.A{tare.A, reset.A}
}

func (sc *Scale) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	if sc.sensor == nil {
		return errors.New("sensor not initialized")
	}

	bridge := accessory.NewBridge(accessory.Info{
		Name:         sc.name(),
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(sc.HkDirectory) > 1 {
		store = hap.NewFsStore(sc.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, sc.GetHkAccessories()...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = sc.HkPin
	if len(sc.HkAddress) > 0 {
		hkServer.Addr = sc.HkAddress
	}

	if sc.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c:
		case <-ctx.Done():
		}
		signal.Stop(c)
		cancel()
	}()

	return hkServer.ListenAndServe(ctx)
}

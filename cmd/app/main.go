package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"

	"github.com/hubertat/swscale"
)

const parameterFileEnv = "SWSCALE_PARAMETERS"

var (
	Version string
	Build   string

	config        = flag.String("config", "config.json", "path of the configuration file (.json or .yaml)")
	flagInstall   = flag.Bool("install", false, "Install service in os")
	parameterFile = flag.String("parameters", "", "path of the calibration parameter file, overrides config and "+parameterFileEnv)
	logLevel      = flag.String("log-level", "", "log level (debug, info, warn, error), overrides config")

	swsService = servicemaker.ServiceMaker{
		User:               "swscale",
		UserGroups:         []string{"gpio"},
		ServicePath:        "/etc/systemd/system/swscale.service",
		ServiceDescription: "SwScale service: HX711 load cell scale with HTTP, MQTT and HomeKit. github.com/hubertat/swscale",
		ExecDir:            "/srv/swscale",
		ExecName:           "swscale",
	}
)

func main() {
	log.Info("swscale started", "version", Version, "build", Build)
	flag.Parse()

	if *flagInstall {
		err := swsService.InstallService()
		if err != nil {
			log.Fatal("service install failed", "err", err)
		}
		log.Info("service installed!")
		return
	}

	sc, err := swscale.LoadConfig(*config)
	if err != nil {
		log.Fatal("can't load config file, will terminate", "path", *config, "err", err)
	}

	if len(*logLevel) > 0 {
		level, err := log.ParseLevel(*logLevel)
		if err != nil {
			log.Fatal("invalid log level", "level", *logLevel)
		}
		log.SetLevel(level)
	}

	if env := os.Getenv(parameterFileEnv); len(env) > 0 {
		sc.ParameterFile = env
	}
	if len(*parameterFile) > 0 {
		sc.ParameterFile = *parameterFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("will init swscale drivers...")
	err = sc.InitDrivers(ctx)
	defer sc.Close()
	if err != nil {
		log.Fatal("driver init failed", "err", err)
	}

	log.Info("will init hx711 sensor...")
	err = sc.InitSensor()
	if err != nil {
		log.Fatal("sensor init failed", "err", err)
	}

	if len(sc.MqttBroker) > 0 {
		err = sc.InitMqtt(ctx)
		if err != nil {
			log.Error("mqtt init failed, we will proceed without it", "err", err)
		}
	}

	if sc.Influx != nil {
		err = sc.InitInflux()
		if err != nil {
			log.Error("influx init failed, we will proceed without it", "err", err)
		}
	}

	sc.PrintIoStatus(os.Stdout)

	err = sc.Start(ctx)
	if err != nil {
		log.Fatal("sampling start failed", "err", err)
	}

	if len(sc.HkPin) == 8 {
		log.Info("Starting with HomeKit server")
		go func() {
			hkErr := sc.StartHomeKit(ctx, Version)
			if hkErr != nil {
				log.Error("HomeKit server stopped", "err", hkErr)
			}
		}()
	} else {
		log.Info("HomeKit not configured, disabled")
	}

	if len(sc.HttpAddr) > 0 {
		err = sc.StartHttp(ctx)
		if err != nil {
			log.Error("http api stopped", "err", err)
		}
		return
	}

	log.Info("http api not configured, sampling only")
	<-ctx.Done()
}

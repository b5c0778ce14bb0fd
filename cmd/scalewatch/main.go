package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/hubertat/swscale"
	"github.com/hubertat/swscale/mqtt"
)

var (
	broker   = flag.String("broker", "mqtt://localhost:1883", "mqtt broker url")
	clientId = flag.String("client-id", "swscale-watch", "mqtt client id")
	name     = flag.String("name", "swscale", "name of the watched scale")
)

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)

	mc, err := mqtt.NewMqttClient(*broker, *clientId)
	if err != nil {
		log.Error("failed to create mqtt client", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readings := mqtt.HandlerFunc{
		Topic: *name + "/reading",
		Handle: func(payload []byte) {
			reading := swscale.WeightResponse{}
			err := json.Unmarshal(payload, &reading)
			if err != nil {
				log.Warn("received malformed reading", "error", err)
				return
			}
			log.Info("reading", "weight", reading.Weight, "raw_value", reading.RawValue, "state", reading.State)
		},
	}

	err = mc.Connect(ctx, []mqtt.MqttHandler{readings})
	if err != nil {
		log.Error("failed to connect to mqtt broker", "error", err)
		return
	}

	<-ctx.Done()
	log.Info("disconnecting")
	mc.Disconnect(context.Background())
}

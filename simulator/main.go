// Command simulator publishes fake fleet telemetry to an MQTT broker:
// one moving GPS track per bus on <prefix>/<busId>/location, with
// occasional breakdown alerts on <prefix>/<busId>/alert. It exists to
// exercise a coordinator instance without real vehicle hardware.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type locationMessage struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AccuracyM  float64 `json:"accuracy_m"`
	ObservedAt int64   `json:"observed_at"` // unix millis
}

type alertMessage struct {
	Type     string            `json:"type"`
	OriginID string            `json:"origin_id"`
	Payload  map[string]string `json:"payload"`
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.TopicPrefix, "prefix", "fleet", "topic prefix")
	flag.IntVar(&cfg.Count, "count", 10, "number of simulated buses")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "publish interval")
	flag.Float64Var(&cfg.AlertRate, "alert-rate", 0.002, "per-bus per-tick breakdown probability")
	flag.Float64Var(&cfg.CenterLat, "lat", 48.8566, "route center latitude")
	flag.Float64Var(&cfg.CenterLng, "lng", 2.3522, "route center longitude")
	flag.BoolVar(&cfg.Verbose, "v", false, "log every publish")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newMQTTClient(cfg.Broker, "fleet-simulator")
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer cli.Disconnect(250)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	buses := GenerateFleet(cfg, rng)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	dt := cfg.Interval.Seconds()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for i := range buses {
				bus := &buses[i]
				bus.Step(rng, dt)

				raw, err := json.Marshal(locationMessage{
					Lat:        bus.Lat,
					Lng:        bus.Lng,
					AccuracyM:  bus.Accuracy(rng),
					ObservedAt: now.UnixMilli(),
				})
				if err != nil {
					log.Printf("marshal location: %v", err)
					continue
				}
				topic := cfg.TopicPrefix + "/" + bus.ID + "/location"
				cli.Publish(topic, 0, false, raw)
				log.Printf("%s lat=%.5f lng=%.5f", bus.ID, bus.Lat, bus.Lng)

				if rng.Float64() < cfg.AlertRate {
					publishBreakdown(cli, cfg, bus)
				}
			}
		}
	}
}

func publishBreakdown(cli paho.Client, cfg Config, bus *SimulatedBus) {
	raw, err := json.Marshal(alertMessage{
		Type:     "breakdown",
		OriginID: bus.ID,
		Payload:  map[string]string{"detail": "simulated breakdown"},
	})
	if err != nil {
		log.Printf("marshal alert: %v", err)
		return
	}
	cli.Publish(cfg.TopicPrefix+"/"+bus.ID+"/alert", 1, false, raw)
	log.Printf("%s breakdown alert", bus.ID)
}

// Package config loads the coordinator configuration from a json or
// yaml file, with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/seatlock"
	"github.com/transitio/fleetcoord/infra/backlog"
	"github.com/transitio/fleetcoord/infra/monitoring"
	"github.com/transitio/fleetcoord/infra/mqtt"
)

type Config struct {
	Server   ServerConfig      `json:"server"`
	Locks    seatlock.Config   `json:"locks"`
	Location location.Config   `json:"location"`
	Alerts   alerts.Config     `json:"alerts"`
	Roster   RosterConfig      `json:"roster"`
	MQTT     mqtt.Config       `json:"mqtt"`
	Backlog  backlog.Config    `json:"backlog"`
	Metrics  metrics.Config    `json:"metrics"`
	Sentry   monitoring.Config `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Server.SetDefaults()
	cfg.Locks.SetDefaults()
	cfg.Location.SetDefaults()
	cfg.Alerts.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Locks.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Location.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Roster.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

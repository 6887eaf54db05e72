package main

import (
	"time"

	"github.com/kmaps-dev/geobatch/internal/config"
	"github.com/kmaps-dev/geobatch/pkg/vworld"
)

// newResolver builds the production V-World client from configuration. Both
// the geocode and serve commands go through here so every vworld config knob
// reaches the client.
func newResolver(cfg *config.Config) vworld.Client {
	return vworld.NewClient(cfg.VWorld.Key,
		vworld.WithBaseURL(cfg.VWorld.BaseURL),
		vworld.WithTimeout(time.Duration(cfg.VWorld.TimeoutSecs)*time.Second),
		vworld.WithRateLimit(cfg.VWorld.RateLimit),
		vworld.WithIdentity(cfg.VWorld.UserAgent, cfg.VWorld.Referer),
		vworld.WithSourceCRS(cfg.CRS.Source),
	)
}

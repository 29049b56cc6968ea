package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the fulfillment server reads from the
// environment. A .env file in the working directory is honored when present.
type Config struct {
	HTTPAddr     string
	LogLevel     string
	OTLPEndpoint string

	// Artificial pacing of per-line reservation processing.
	ReservationDelay time.Duration

	// Shipment simulation timers.
	ShipDelay     time.Duration
	DeliveryDelay time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		LogLevel:         env("LOG_LEVEL", "info"),
		OTLPEndpoint:     env("OTLP_ENDPOINT", ""),
		ReservationDelay: envDuration("RESERVATION_DELAY", 100*time.Millisecond),
		ShipDelay:        envDuration("SHIP_DELAY", 2*time.Second),
		DeliveryDelay:    envDuration("DELIVERY_DELAY", 3*time.Second),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

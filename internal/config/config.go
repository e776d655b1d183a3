package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration of the draw engine service, loaded
// from the environment.
type Config struct {
	Addr        string
	DatabaseURL string

	// Audit streaming. Kafka and S3 are optional; without brokers the
	// streamer is not started and events stay in the database.
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	// AuditDir enables the file-backed audit log for local development
	// when no database is reachable for the audit trail. The file log is
	// never streamed, so it cannot be combined with Kafka brokers.
	AuditDir string

	// JWTSecret validates operator bearer tokens when set.
	JWTSecret string

	// RunningTimeout is how long a draw may stay in running before the
	// reconciler fails it. ReconcileInterval is the sweep cadence.
	RunningTimeout    time.Duration
	ReconcileInterval time.Duration
}

const (
	defaultAddr              = ":8070"
	defaultKafkaTopic        = "draw-audit-events"
	defaultRunningTimeout    = 2 * time.Minute
	defaultReconcileInterval = 30 * time.Second
)

func Load() (Config, error) {
	cfg := Config{
		Addr:              getEnv("DRAW_ENGINE_ADDR", defaultAddr),
		DatabaseURL:       firstNonEmpty(os.Getenv("DRAW_ENGINE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:      splitList(os.Getenv("DRAW_ENGINE_KAFKA_BROKERS")),
		KafkaTopic:        getEnv("DRAW_ENGINE_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:          os.Getenv("DRAW_ENGINE_S3_BUCKET"),
		S3Prefix:          os.Getenv("DRAW_ENGINE_S3_PREFIX"),
		AuditDir:          os.Getenv("DRAW_ENGINE_AUDIT_DIR"),
		JWTSecret:         os.Getenv("DRAW_ENGINE_JWT_SECRET"),
		RunningTimeout:    getDuration("DRAW_ENGINE_RUNNING_TIMEOUT", defaultRunningTimeout),
		ReconcileInterval: getDuration("DRAW_ENGINE_RECONCILE_INTERVAL", defaultReconcileInterval),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or DRAW_ENGINE_DATABASE_URL required")
	}
	if cfg.AuditDir != "" && len(cfg.KafkaBrokers) > 0 {
		return Config{}, fmt.Errorf("DRAW_ENGINE_AUDIT_DIR and DRAW_ENGINE_KAFKA_BROKERS are mutually exclusive: the file audit log is not streamed")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

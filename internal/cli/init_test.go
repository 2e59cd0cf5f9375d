package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"sikdae/internal/config"
	applog "sikdae/internal/log"
)

func TestLoggerConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "warn", LogFormat: "json"}
	lc := LoggerConfig(cfg, applog.ComponentWorker, &buf)
	if lc.Level != slog.LevelWarn || lc.Format != "json" || lc.Component != applog.ComponentWorker {
		t.Fatalf("unexpected logger config: %+v", lc)
	}

	logger := applog.New(lc)
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"component":"worker"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestAMQPConfig(t *testing.T) {
	cfg := &config.Config{
		AMQPURL:          "amqp://localhost:5672/",
		AMQPExchange:     "sikdae",
		AMQPRequestQueue: "req",
		AMQPResultQueue:  "res",
		WorkerPrefetch:   8,
	}
	got := AMQPConfig(cfg)
	if got.URL != cfg.AMQPURL || got.RequestQueue != "req" || got.ResultQueue != "res" || got.Prefetch != 8 {
		t.Fatalf("unexpected amqp config: %+v", got)
	}
}

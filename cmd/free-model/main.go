package main

import (
	"flag"
	"log"

	"github.com/drakos74/free-model/infra/config"
	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/math/nn"
	"github.com/drakos74/free-model/internal/metrics"
	"github.com/drakos74/free-model/internal/server"
	"github.com/drakos74/free-model/internal/session"
	"github.com/drakos74/free-model/internal/storage"
	json_storage "github.com/drakos74/free-model/internal/storage/file/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	configDir := flag.String("config", "infra/config", "directory of the configuration files")
	flag.Parse()

	cfg := config.DefaultServer()
	if _, err := config.Load(*configDir, "free-model", &cfg); err != nil {
		log.Printf("using default config: %s", err.Error())
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level: %s", err.Error())
	}
	zerolog.SetGlobalLevel(level)

	var m *metrics.Metrics
	if cfg.Metrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector())
		m, err = metrics.New(registry)
		if err != nil {
			log.Fatalf("error creating metrics: %s", err.Error())
		}
	}

	shard := storage.VoidShard()
	if cfg.StorageDir != "" {
		shard = json_storage.BlobShard(cfg.StorageDir, "models")
	} else {
		log.Printf("no storage directory, models will not be persisted")
	}

	sessions, err := session.NewManager(func() framework.Backend {
		return nn.New()
	}, shard, m)
	if err != nil {
		log.Fatalf("error creating sessions: %s", err.Error())
	}

	s := server.NewServer("free-model", cfg.Port).
		Add(server.NewAPI(sessions, cfg.Debug).Routes()...)
	if cfg.Debug {
		s.Debug()
	}
	if m != nil {
		s.WithMetrics(m.Handler())
	}

	if err := s.Run(); err != nil {
		log.Fatalf("error running server: %s", err.Error())
	}
}

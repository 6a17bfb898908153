package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/AIONPAY/AION-MVP/internal/app"
	"github.com/AIONPAY/AION-MVP/internal/config"
	"github.com/AIONPAY/AION-MVP/internal/logger"
)

const serviceName = "aion-relayer"

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: serviceName,
	}); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.L()
	log.Info("starting service",
		zap.String("service", serviceName),
		zap.String("env", cfg.Service.Env),
		zap.Int("http_port", cfg.Service.HTTPPort),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Fatal("failed to create app", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		log.Fatal("app run error", zap.Error(err))
	}

	log.Info("service stopped")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"pwmcode-go/bus"
	"pwmcode-go/services/config"
	"pwmcode-go/services/hal"
	"pwmcode-go/services/httpapi"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML board config (overrides -embedded)")
		embed   = flag.String("embedded", "sim", "embedded config name")
		listen  = flag.String("listen", ":8080", "HTTP listen address")
	)
	flag.Parse()

	logger := logrus.New()

	cfg, err := loadConfig(*cfgPath, *embed)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(cfg.LogrusLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(16)
	h, err := hal.New(b.NewConnection("hal"), hal.Config{
		Chip: cfg.Chip,
		Log:  logger.WithField("svc", "hal"),
	})
	if err != nil {
		logger.WithError(err).Fatal("hal")
	}
	go h.Run(ctx)

	config.NewConfigService(cfg).Start(ctx, b.NewConnection("config"))

	logger.WithFields(logrus.Fields{
		"chip":    h.Chip(),
		"outputs": len(cfg.Outputs),
		"chips":   strings.Join(hal.Chips(), ","),
	}).Info("simulated pwm hal started")

	server := httpapi.Server{Addr: *listen, HAL: h, Conn: b.NewConnection("http"), Logger: logger}
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Fatal("http")
	}
}

func loadConfig(path, embedded string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Embedded(embedded)
}

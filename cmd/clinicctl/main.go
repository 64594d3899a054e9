package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type catalogWriter interface {
	Set(ctx context.Context, cfg *clinic.Config) error
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: clinicctl <clinic.json>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		logger.Error("redis is required to load clinic catalogs", "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	ids, err := load(ctx, os.Args[1], clinic.NewStore(client))
	if err != nil {
		logger.Error("failed to load clinic catalog", "error", err, "path", os.Args[1])
		os.Exit(1)
	}
	logger.Info("clinic catalogs loaded", "clinics", ids)
}

// load validates every catalog in the file before writing any of them.
func load(ctx context.Context, path string, store catalogWriter) ([]string, error) {
	cfgs, err := clinic.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, errors.New("clinicctl: no catalogs in file")
	}
	ids := make([]string, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := store.Set(ctx, cfg); err != nil {
			return ids, fmt.Errorf("clinicctl: store %s: %w", cfg.ClinicID, err)
		}
		ids = append(ids, cfg.ClinicID)
	}
	return ids, nil
}

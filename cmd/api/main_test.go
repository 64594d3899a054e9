package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
)

func TestHealthChecksOnlyConfiguredBackends(t *testing.T) {
	if checks := healthChecks(&bootstrap.App{}); len(checks) != 0 {
		t.Fatalf("expected no checks, got %v", checks)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checks := healthChecks(&bootstrap.App{Redis: client})
	check, ok := checks["redis"]
	if !ok {
		t.Fatalf("expected redis check")
	}
	if err := check.Ping(context.Background()); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	mr.Close()
	if err := check.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping failure after redis stopped")
	}
}

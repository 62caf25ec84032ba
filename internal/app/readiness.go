package app

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Pinger is the minimal interface for a dependency capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the named readiness probes: db, redis and one
// liveness probe per tool server base URL.
func BuildReadinessChecks(pool, cache Pinger, toolURLs map[string]string) map[string]func(ctx context.Context) error {
	probes := map[string]func(ctx context.Context) error{
		"db": func(ctx context.Context) error {
			if pool == nil {
				return fmt.Errorf("db not configured")
			}
			return pool.Ping(ctx)
		},
		"redis": func(ctx context.Context) error {
			if cache == nil {
				return fmt.Errorf("redis not configured")
			}
			return cache.Ping(ctx)
		},
	}
	for name, base := range toolURLs {
		url := base
		probes["tool_"+name] = func(ctx context.Context) error {
			client := &http.Client{Timeout: 2 * time.Second}
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url+"/", nil)
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 200 && resp.StatusCode < 500 {
				return nil
			}
			return fmt.Errorf("tool server status %d", resp.StatusCode)
		}
	}
	return probes
}

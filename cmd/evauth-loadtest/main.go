package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	authclient "github.com/evdealer/authclient"
	"github.com/evdealer/authclient/internal/testbackend"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "requests per phase")
		server      = flag.String("server", "", "backend base URL; empty runs an in-process stub")
		email       = flag.String("email", "staff@dealer.vn", "account to sign in with")
		password    = flag.String("password", "dealer123", "account password")
		path        = flag.String("path", "/vehicles", "protected path to request")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		seal        = flag.Bool("seal", true, "seal the session-backed copy")
		rotateEvery = flag.Duration("rotate-every", 20*time.Millisecond, "refresh interval during the rotation phase")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	baseURL := *server
	if baseURL == "" {
		stub := testbackend.New()
		stub.RotateRefresh(true)
		defer stub.Close()
		baseURL = stub.URL
		fmt.Printf("using in-process backend at %s\n", baseURL)
	}

	rdb, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := authclient.DefaultConfig()
	cfg.Backend.BaseURL = baseURL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	if *seal {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			fmt.Fprintf(os.Stderr, "secret: %v\n", err)
			os.Exit(1)
		}
		cfg.Session.SigningSecret = secret
	}

	client, err := authclient.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	startLogin := time.Now()
	if _, err := client.Exchange(ctx, authclient.PasswordAssertion{Email: *email, Password: *password}); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("signed in as %s in %s\n", *email, time.Since(startLogin).Round(time.Millisecond))

	dispatchStats := runDispatchPhase(ctx, client, *path, *ops, *concurrency, 0)
	rotateStats := runDispatchPhase(ctx, client, *path, *ops, *concurrency, *rotateEvery)

	fmt.Println("---- results ----")
	printStats("dispatch", dispatchStats)
	printStats("dispatch+rotate", rotateStats)

	m := client.Metrics()
	fmt.Printf("counters: dispatch_ok=%d http_error=%d transport_error=%d refresh_ok=%d refresh_failed=%d session_writes=%d\n",
		m.Value(authclient.MetricDispatchSuccess),
		m.Value(authclient.MetricDispatchHTTPError),
		m.Value(authclient.MetricDispatchTransportError),
		m.Value(authclient.MetricRefreshSuccess),
		m.Value(authclient.MetricRefreshFailure),
		m.Value(authclient.MetricSessionWrite),
	)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return rdb, func() { _ = rdb.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

// runDispatchPhase sends ops GET requests. When rotateEvery is positive a
// separate goroutine refreshes the session on that interval meanwhile.
func runDispatchPhase(ctx context.Context, client *authclient.Client, path string, ops, concurrency int, rotateEvery time.Duration) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		rotations int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	stop := make(chan struct{})
	var rotator sync.WaitGroup
	if rotateEvery > 0 {
		rotator.Add(1)
		go func() {
			defer rotator.Done()
			ticker := time.NewTicker(rotateEvery)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if _, err := client.RefreshAccessToken(ctx); err == nil {
						atomic.AddInt64(&rotations, 1)
					}
				}
			}
		}()
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := client.Do(ctx, authclient.Request{Path: path})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	close(stop)
	rotator.Wait()

	s := computeStats(total, latencies, failures)
	s.rotations = rotations
	return s
}

type phaseStats struct {
	total     time.Duration
	ops       int
	failures  int64
	rotations int64
	p50       time.Duration
	p95       time.Duration
	p99       time.Duration
	opsPerS   float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d rotations=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.rotations,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

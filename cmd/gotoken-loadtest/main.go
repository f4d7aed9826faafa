package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goToken "github.com/MrEthical07/goToken"
)

type userState struct {
	id      int64
	refresh string
	access  string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + refresh)")
		racers      = flag.Int("racers", 16, "goroutines presenting the same refresh token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		memory      = flag.Bool("memory", false, "use the in-process record store instead of redis")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("gotoken-loadtest-secret-gotoken-loadtest")
	cfg.Cleanup.Interval = 0

	builder := goToken.New().WithConfig(cfg).WithLogger(zerolog.Nop())

	if !*memory {
		addr := *redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
				os.Exit(1)
			}
			defer mr.Close()
			addr = mr.Addr()
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		defer client.Close()
		builder.WithRedis(client)
	} else {
		fmt.Println("using in-process record store")
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]userState, *users)
	fmt.Printf("issuing tokens for %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		id := int64(i + 1)
		pair, err := engine.Issue(ctx, goToken.Identity{
			UserID:  id,
			Subject: fmt.Sprintf("user-%d@loadtest.local", id),
			Roles:   []string{"USER"},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = userState{id: id, refresh: pair.RefreshToken, access: pair.AccessToken}
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	winners, replays := runRacePhase(ctx, engine, *racers)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: racers=%d winners=%d rejected=%d\n", *racers, winners, replays)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: %v\n", snap.Counters)
	if winners != 1 {
		fmt.Fprintln(os.Stderr, "race phase produced more than one winner")
		os.Exit(1)
	}
}

func runValidatePhase(ctx context.Context, engine *goToken.Engine, states []userState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		token := state.access
		state.mu.Unlock()
		_, err := engine.Validate(ctx, token)
		return err
	})
}

// runRefreshPhase rotates a random user's pair per operation. The per-user lock
// keeps each worker presenting the latest refresh token.
func runRefreshPhase(ctx context.Context, engine *goToken.Engine, states []userState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		pair, err := engine.Refresh(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.refresh = pair.RefreshToken
		state.access = pair.AccessToken
		return nil
	})
}

// runRacePhase releases racers goroutines at one refresh token and reports how
// many rotations succeeded.
func runRacePhase(ctx context.Context, engine *goToken.Engine, racers int) (winners, rejected int64) {
	pair, err := engine.Issue(ctx, goToken.Identity{UserID: 1 << 40, Subject: "race@loadtest.local"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "race issue failed: %v\n", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(ctx, pair.RefreshToken)
			switch {
			case err == nil:
				atomic.AddInt64(&winners, 1)
			case errors.Is(err, goToken.ErrTokenAlreadyUsedOrRevoked):
				atomic.AddInt64(&rejected, 1)
			default:
				fmt.Fprintf(os.Stderr, "race refresh: %v\n", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return winners, rejected
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

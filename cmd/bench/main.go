package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tagroute/config"
	"tagroute/internal/adapter/cache"
	"tagroute/internal/adapter/filestore"
	"tagroute/internal/adapter/fs"
	"tagroute/internal/adapter/proxy"
	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/port"
	"tagroute/internal/usecase"
)

type variant struct {
	name     string
	threaded bool
	cached   bool
	metric   string
}

func main() {
	netPath := flag.String("net", ".", "Path to a YAML network")
	identity := flag.Int64("i", 0, "Querying identity")
	tag := flag.String("t", "", "Tag to query")
	runs := flag.Int("n", 5, "Runs per variant")
	after := flag.Int("after", 4, "Steps after the first results")
	flag.Parse()

	if *tag == "" || *identity == 0 {
		fmt.Println("Usage: go run ./cmd/bench -net ./net -i 8028 -t aacs")
		fmt.Println("\nVariants:")
		fmt.Println("  threaded / unthreaded task services")
		fmt.Println("  with and without the query cache")
		fmt.Println("  probability and entropy scheme metrics")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*netPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	files, err := filestore.Open(*netPath, fs.NewWalker(cfg.Store.Includes, cfg.Store.Excludes))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening network: %v\n", err)
		os.Exit(1)
	}
	raw := proxy.NewProbabilityStore(files)

	variants := []variant{
		{"threaded", true, false, "probability"},
		{"unthreaded", false, false, "probability"},
		{"threaded+cache", true, true, "probability"},
		{"threaded entropy", true, false, "entropy"},
	}

	fmt.Println("ROUTING BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Query: %q for %d, %d runs per variant\n\n", *tag, *identity, *runs)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := usecase.Query{Identity: domain.Addr(*identity), Tag: domain.Tag(*tag)}

	for _, v := range variants {
		var st port.StoreControl = raw
		var qc *cache.QueryCache
		if v.cached {
			qc = cache.NewQueryCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
			st = cache.NewCachedStore(raw, qc)
		}

		var total time.Duration
		var last usecase.Stats
		failed := 0
		for i := 0; i < *runs; i++ {
			d, stats, err := runOnce(st, cfg, v, q, *after, log)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "  %s run %d: %v\n", v.name, i+1, err)
				continue
			}
			total += d
			last = stats
		}

		ok := *runs - failed
		if ok == 0 {
			fmt.Printf("%-18s  all runs failed\n", v.name)
			continue
		}
		line := fmt.Sprintf("%-18s  avg %-10s %s", v.name, (total / time.Duration(ok)).Round(time.Microsecond), last)
		if qc != nil {
			line += fmt.Sprintf("  cache entries: %d", qc.Size())
		}
		fmt.Println(line)
	}
}

func runOnce(st port.StoreControl, cfg *config.Config, v variant, q usecase.Query, after int, log *slog.Logger) (time.Duration, usecase.Stats, error) {
	opts, err := usecase.OptionsFromConfig(cfg)
	if err != nil {
		return 0, usecase.Stats{}, err
	}
	opts.Threaded = v.threaded
	opts.Metric = v.metric
	opts.PollInterval = 0

	env, err := usecase.NewEnvironment(st, exec.NewPool(cfg.Query.Workers), opts, log)
	if err != nil {
		return 0, usecase.Stats{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	p, err := usecase.NewProcess(ctx, env, q)
	if err != nil {
		return 0, usecase.Stats{}, err
	}
	agent, err := usecase.NewAgent(0, cfg.Query.MaxSteps, log)
	if err != nil {
		return 0, usecase.Stats{}, err
	}

	start := time.Now()
	if _, err := agent.RunUntilAfter(ctx, p, after); err != nil {
		return 0, usecase.Stats{}, err
	}
	return time.Since(start), p.Stats(), nil
}

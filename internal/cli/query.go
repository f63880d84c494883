package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/scheme"
	"tagroute/internal/telemetry"
	"tagroute/internal/usecase"
)

var (
	queryTag         string
	queryIdentity    int64
	queryAfter       int
	queryMaxSteps    int
	queryTopK        int
	queryJSON        bool
	queryLookups     bool
	queryMetricsAddr string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Route a tag query through the network",
	Long: `Route a tag query on behalf of an identity and print the documents and
indexes found, best first.

Examples:
  tagroute query -i 8028 -t aacs
  tagroute query -i 8028 -t aacs --after 8 --top-k 5 --json
  tagroute query -i 8028 -t aacs --metrics-addr :9090`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryTag, "tag", "t", "", "tag to look for (required)")
	queryCmd.Flags().Int64VarP(&queryIdentity, "identity", "i", 0, "querying identity (required)")
	queryCmd.Flags().IntVar(&queryAfter, "after", -1, "steps to run after the first results (default from config)")
	queryCmd.Flags().IntVar(&queryMaxSteps, "max-steps", 0, "step limit (default from config)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 10, "number of documents and indexes to print, 0 for all")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryLookups, "lookups", false, "print the finished lookups")
	queryCmd.Flags().StringVar(&queryMetricsAddr, "metrics-addr", "", "serve /metrics on this address while the query runs")
	queryCmd.MarkFlagRequired("tag")
	queryCmd.MarkFlagRequired("identity")
}

// Scored is one result entry.
type Scored struct {
	Addr  domain.Addr `json:"addr"`
	Score float64     `json:"score"`
}

// QueryOutput is the JSON form of a finished query.
type QueryOutput struct {
	Run      string        `json:"run"`
	Identity domain.Addr   `json:"identity"`
	Tag      domain.Tag    `json:"tag"`
	Stats    string        `json:"stats"`
	Scheme   []domain.Tag  `json:"scheme"`
	TGraphs  []domain.Addr `json:"tgraphs,omitempty"`
	Docs     []Scored      `json:"docs"`
	Indexes  []Scored      `json:"indexes"`
	Elapsed  string        `json:"elapsed"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	run := uuid.NewString()[:8]
	log := slog.Default().With(slog.String("run", run))

	st, closeStore, err := openStore(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer closeStore()

	opts, err := usecase.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	env, err := usecase.NewEnvironment(st, exec.NewPool(cfg.Query.Workers), opts, log)
	if err != nil {
		return err
	}

	addr := queryMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		stop := serveMetrics(addr, log)
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	q := usecase.Query{Identity: domain.Addr(queryIdentity), Tag: domain.Tag(queryTag)}
	p, err := usecase.NewProcess(ctx, env, q)
	if err != nil {
		return err
	}

	maxSteps := cfg.Query.MaxSteps
	if queryMaxSteps > 0 {
		maxSteps = queryMaxSteps
	}
	after := cfg.Query.StepsAfter
	if queryAfter >= 0 {
		after = queryAfter
	}

	agent, err := usecase.NewAgent(opts.PollInterval, maxSteps, log)
	if err != nil {
		return err
	}
	if !queryJSON {
		bar := newStepBar(maxSteps)
		agent.OnStep = func(s usecase.Stats) {
			bar.Add(1)
			bar.Describe(fmt.Sprintf("[cyan]Routing[reset] %s", s))
		}
		defer bar.Finish()
	}

	start := time.Now()
	res, err := agent.RunUntilAfter(ctx, p, after)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, usecase.ErrNoResults) {
		return fmt.Errorf("query failed: %w", err)
	}

	stats := p.Stats()
	log.Info("query finished",
		slog.Int64("identity", int64(q.Identity)),
		slog.String("tag", string(q.Tag)),
		slog.String("stats", stats.String()),
		slog.Duration("elapsed", elapsed))

	out := QueryOutput{
		Run:      run,
		Identity: q.Identity,
		Tag:      q.Tag,
		Stats:    stats.String(),
		Docs:     topScored(res.M0, queryTopK),
		Indexes:  topScored(res.M1, queryTopK),
		Elapsed:  formatDuration(elapsed),
	}
	out.Scheme, out.TGraphs = schemeSummary(p.AddressScheme())

	if queryJSON {
		output, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("\nRun %s: %s for %d in %s\n", run, q.Tag, q.Identity, out.Elapsed)
	fmt.Printf("  %s\n", out.Stats)
	fmt.Printf("  scheme: %v\n", out.Scheme)
	if len(out.TGraphs) > 0 {
		fmt.Printf("  tgraphs: %v\n", out.TGraphs)
	}
	if len(out.Docs) == 0 {
		fmt.Println("\nNo results found.")
		return nil
	}
	fmt.Println("\nDocuments:")
	for i, d := range out.Docs {
		fmt.Printf("  [%d] %d  %.4f\n", i+1, d.Addr, d.Score)
	}
	if len(out.Indexes) > 0 {
		fmt.Println("\nIndexes:")
		for i, h := range out.Indexes {
			fmt.Printf("  [%d] %d  %.4f\n", i+1, h.Addr, h.Score)
		}
	}
	if queryLookups {
		fmt.Println("\nLookups:")
		for _, line := range usecase.FormatLookups(p.CompletedLookups(), out.Scheme) {
			fmt.Printf("  %s\n", line)
		}
	}
	return nil
}

// topScored sorts by descending score, then address, and keeps the first k.
func topScored(m map[domain.Addr]domain.Probability, k int) []Scored {
	out := make([]Scored, 0, len(m))
	for a, w := range m {
		out = append(out, Scored{Addr: a, Score: w.Float64()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Addr < out[j].Addr
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// schemeSummary splits a scheme into its ranked tags and tag-graph
// addresses.
func schemeSummary(sch *scheme.Scheme) ([]domain.Tag, []domain.Addr) {
	if sch == nil {
		return nil, nil
	}
	var tags []domain.Tag
	for _, n := range sch.Nodes() {
		if n.Is0() {
			tags = append(tags, n.Must0())
		}
	}
	return tags, sch.Addresses()
}

func newStepBar(maxSteps int) *progressbar.ProgressBar {
	if maxSteps <= 0 {
		maxSteps = -1
	}
	return progressbar.NewOptions(maxSteps,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Routing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// serveMetrics exposes the telemetry registry until the returned func is
// called.
func serveMetrics(addr string, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics listener failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	log.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

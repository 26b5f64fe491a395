// Command insights reads the activity log, reports malformed rows and prints
// the current rebalance decision without starting the gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"pol-gateway/internal/activity"
	"pol-gateway/internal/domain"
	"pol-gateway/internal/signal"
)

type summary struct {
	Path     string                   `json:"path"`
	Entries  int                      `json:"entries"`
	ByKind   map[string]int           `json:"by_kind"`
	First    string                   `json:"first,omitempty"`
	Last     string                   `json:"last,omitempty"`
	SMAA     *float64                 `json:"sma_a,omitempty"`
	SMAB     *float64                 `json:"sma_b,omitempty"`
	Decision domain.RebalanceDecision `json:"decision"`
}

func main() {
	path := flag.String("log", envOr("ACTIVITY_LOG_FILE", "data/activity.log"), "Path to the activity log")
	asJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	s, err := summarize(context.Background(), *path)
	if err != nil {
		var perr *activity.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "Error: line %d of %s is malformed: %v\n", perr.Line, *path, perr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printSummary(os.Stdout, s)
}

func summarize(ctx context.Context, path string) (*summary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	log, err := activity.New(path)
	if err != nil {
		return nil, err
	}
	entries, err := log.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	s := &summary{
		Path:     path,
		Entries:  len(entries),
		ByKind:   make(map[string]int),
		Decision: signal.Decide(entries),
	}
	for _, e := range entries {
		s.ByKind[e.Kind.String()]++
	}
	if len(entries) > 0 {
		s.First = time.Unix(entries[0].Timestamp, 0).UTC().Format(time.RFC3339)
		s.Last = time.Unix(entries[len(entries)-1].Timestamp, 0).UTC().Format(time.RFC3339)
	}

	if len(entries) >= signal.WindowSize {
		a := make([]float64, len(entries))
		b := make([]float64, len(entries))
		for i, e := range entries {
			a[i], b[i] = e.AmountA, e.AmountB
		}
		if v, err := signal.SMA(a, signal.WindowSize); err == nil {
			s.SMAA = &v
		}
		if v, err := signal.SMA(b, signal.WindowSize); err == nil {
			s.SMAB = &v
		}
	}
	return s, nil
}

func printSummary(w io.Writer, s *summary) {
	fmt.Fprintf(w, "Activity log: %s\n", s.Path)
	fmt.Fprintf(w, "Entries:      %d\n", s.Entries)
	if s.Entries > 0 {
		fmt.Fprintf(w, "Range:        %s .. %s\n", s.First, s.Last)
	}

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-15s %d\n", k, s.ByKind[k])
	}

	if s.SMAA != nil && s.SMAB != nil {
		fmt.Fprintf(w, "SMA-%d:       a=%.6f b=%.6f\n", signal.WindowSize, *s.SMAA, *s.SMAB)
	} else {
		fmt.Fprintf(w, "SMA-%d:       not enough entries\n", signal.WindowSize)
	}
	fmt.Fprintf(w, "Decision:     buy=%t sell=%t rebalance=%t\n", s.Decision.Buy, s.Decision.Sell, s.Decision.Rebalance)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

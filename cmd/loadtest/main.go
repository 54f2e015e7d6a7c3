// Command loadtest drives sustained read traffic at a running scorer and
// reports throughput, latency distribution, and status code counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// result is one completed request as seen by a worker. status is zero when
// the request failed before any response arrived.
type result struct {
	latency time.Duration
	status  int
}

type summary struct {
	total     int
	succeeded int
	failed    int
	latencies []time.Duration
	byStatus  map[int]int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the scorer service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	corporaFlag := flag.String("corpora", "news,reviews,articles", "comma-separated corpus names to hit")
	flag.Parse()

	targets := buildTargets(strings.Split(*corporaFlag, ","))
	for _, t := range targets {
		if _, err := http.NewRequest(http.MethodGet, *baseURL+t, nil); err != nil {
			fmt.Fprintf(os.Stderr, "invalid target %s%s: %v\n", *baseURL, t, err)
			os.Exit(2)
		}
	}

	fmt.Println("=== Corpus Scoring Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Endpoints:   %d unique\n", len(targets))
	fmt.Println()

	s := run(*baseURL, targets, *concurrency, *duration)
	report(s, *duration)

	if s.total == 0 {
		fmt.Println()
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

// buildTargets expands each corpus into the scoring endpoints worth
// exercising under load, plus the corpus listing.
func buildTargets(corpora []string) []string {
	targets := []string{"/api/v1/corpora"}
	for _, c := range corpora {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		targets = append(targets,
			fmt.Sprintf("/api/v1/corpora/%s/top?limit=10", c),
			fmt.Sprintf("/api/v1/corpora/%s/stats", c),
			fmt.Sprintf("/api/v1/corpora/%s/sentiment", c),
			fmt.Sprintf("/api/v1/corpora/%s/topics", c),
			fmt.Sprintf("/api/v1/corpora/%s/correlations?limit=20", c),
		)
	}
	return targets
}

// run fans out workers for the configured duration and merges their local
// result batches once at the end. Workers never share state while the test
// is hot, so the generator itself adds no lock contention to the numbers.
func run(baseURL string, targets []string, concurrency int, duration time.Duration) *summary {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	batches := make(chan []result, concurrency)
	var wg sync.WaitGroup
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batches <- worker(ctx, client, baseURL, targets, w)
		}()
	}
	go func() {
		wg.Wait()
		close(batches)
	}()

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	s := &summary{byStatus: make(map[int]int)}
	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				fmt.Println(" done")
				fmt.Println()
				slices.Sort(s.latencies)
				return s
			}
			s.merge(batch)
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

// worker walks the target list round-robin, starting at its own offset so
// the workers spread across endpoints instead of stampeding one.
func worker(ctx context.Context, client *http.Client, baseURL string, targets []string, offset int) []result {
	results := make([]result, 0, 4096)
	for i := offset; ; i++ {
		select {
		case <-ctx.Done():
			return results
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+targets[i%len(targets)], nil)
		if err != nil {
			results = append(results, result{})
			continue
		}

		start := time.Now()
		resp, err := client.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			results = append(results, result{latency: elapsed})
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		results = append(results, result{latency: elapsed, status: resp.StatusCode})
	}
}

func (s *summary) merge(batch []result) {
	for _, r := range batch {
		s.total++
		if r.status == 0 {
			s.failed++
			continue
		}
		s.byStatus[r.status]++
		s.latencies = append(s.latencies, r.latency)
		if r.status >= 200 && r.status < 300 {
			s.succeeded++
		} else {
			s.failed++
		}
	}
}

func report(s *summary, duration time.Duration) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total requests:\t%d\n", s.total)
	fmt.Fprintf(w, "Successful:\t%d\n", s.succeeded)
	fmt.Fprintf(w, "Errors:\t%d\n", s.failed)
	if s.total > 0 {
		fmt.Fprintf(w, "Error rate:\t%.2f%%\n", float64(s.failed)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:\t%.2f\n", float64(s.total)/duration.Seconds())
	}

	if len(s.latencies) > 0 {
		var sum time.Duration
		for _, l := range s.latencies {
			sum += l
		}
		avg := sum / time.Duration(len(s.latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:\t%s\n", s.latencies[0])
		fmt.Fprintf(w, "Avg:\t%s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%.0f:\t%s\n", p, percentile(s.latencies, p))
		}
		fmt.Fprintf(w, "Max:\t%s\n", s.latencies[len(s.latencies)-1])
		fmt.Fprintf(w, "StdDev:\t%s\n", stddev(s.latencies, avg))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range slices.Sorted(maps.Keys(s.byStatus)) {
		fmt.Fprintf(w, "  %d:\t%d\n", code, s.byStatus[code])
	}

	w.Flush()
}

// percentile takes the ceil-rank element, so P99 of 100 samples is the
// 99th-largest, not an interpolation.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := min(len(sorted)-1, max(0, int(math.Ceil(p/100*float64(len(sorted))))-1))
	return sorted[idx]
}

func stddev(latencies []time.Duration, avg time.Duration) time.Duration {
	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l - avg)
		sumSquared += diff * diff
	}
	return time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
}

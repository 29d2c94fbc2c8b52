// Command benchmark measures navigate and wait latency of a running
// browserkit server across a few representative sites.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/montanaflynn/stats"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "browserkit API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Each target is loaded and then waited on with its selector.
var targets = []struct {
	Label    string
	URL      string
	Selector string
}{
	{"Static", "https://example.com", "h1"},
	{"Blog", "https://go.dev/blog/go1.21", "article a"},
	{"Docs", "https://go.dev/doc/effective_go", "h2"},
	{"News", "https://www.bbc.com/news", "a[href]"},
	{"Complex", "https://github.com/go-rod/rod", "a[href]"},
}

// --- API envelope (mirrors models package) ---

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Timing  struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type waitData struct {
	Count int `json:"count"`
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	NavigateMs int64  `json:"navigate_ms"`
	WaitMs     int64  `json:"wait_ms"`
	Elements   int    `json:"elements"`
	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type urlAverages struct {
	NavigateMs    float64 `json:"navigate_ms"`
	NavigateP95Ms float64 `json:"navigate_p95_ms"`
	WaitMs        float64 `json:"wait_ms"`
	WaitP95Ms     float64 `json:"wait_p95_ms"`
	Elements      float64 `json:"elements"`
}

type urlResult struct {
	URL       string       `json:"url"`
	Label     string       `json:"label"`
	Selector  string       `json:"selector"`
	Runs      []runResult  `json:"runs"`
	Successes int          `json:"successes"`
	Averages  *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

var (
	client = &http.Client{Timeout: 150 * time.Second}
	okMark = color.New(color.FgGreen).SprintFunc()
	failed = color.New(color.FgRed).SprintFunc()
)

func main() {
	flag.Parse()

	fmt.Println("=== browserkit benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range targets {
		fmt.Printf("Benchmarking [%s] %s (%s) ...\n", t.Label, t.URL, t.Selector)
		ur := urlResult{URL: t.URL, Label: t.Label, Selector: t.Selector}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(t.URL, t.Selector, i)
			if rr.Success {
				fmt.Printf("%s  nav %dms  wait %dms  %d elements\n", okMark("OK"), rr.NavigateMs, rr.WaitMs, rr.Elements)
			} else {
				fmt.Printf("%s: %s %s\n", failed("FAILED"), rr.ErrorCode, rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Successes, ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func post(path string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return &out, nil
}

func benchmarkURL(url, selector string, run int) runResult {
	rr := runResult{Run: run}

	nav, err := post("/api/v1/navigate", map[string]string{"url": url})
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	rr.NavigateMs = nav.Timing.TotalMs
	if !nav.Success {
		rr.fail(nav)
		return rr
	}

	wt, err := post("/api/v1/wait", map[string]any{"selector": selector, "wait_seconds": 30})
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	rr.WaitMs = wt.Timing.TotalMs
	if !wt.Success {
		rr.fail(wt)
		return rr
	}

	var data waitData
	if err := json.Unmarshal(wt.Data, &data); err != nil {
		rr.Error = fmt.Sprintf("decode wait result: %v", err)
		return rr
	}
	rr.Elements = data.Count
	rr.Success = true
	return rr
}

func (rr *runResult) fail(resp *apiResponse) {
	if resp.Error != nil {
		rr.ErrorCode = resp.Error.Code
		rr.Error = resp.Error.Message
	}
}

func computeAverages(runs []runResult) (int, *urlAverages) {
	var nav, wait, elements stats.Float64Data
	for _, r := range runs {
		if !r.Success {
			continue
		}
		nav = append(nav, float64(r.NavigateMs))
		wait = append(wait, float64(r.WaitMs))
		elements = append(elements, float64(r.Elements))
	}
	if len(nav) == 0 {
		return 0, nil
	}

	var avg urlAverages
	avg.NavigateMs, _ = stats.Mean(nav)
	avg.NavigateP95Ms, _ = stats.Percentile(nav, 95)
	avg.WaitMs, _ = stats.Mean(wait)
	avg.WaitP95Ms, _ = stats.Percentile(wait, 95)
	avg.Elements, _ = stats.Mean(elements)
	return len(nav), &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Navigate\tp95 Navigate\tAvg Wait\tp95 Wait\tElements\tOK\n")
	fmt.Fprintf(w, "───\t────────────\t────────────\t────────\t────────\t────────\t──\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\t0/%d\n", truncateURL(r.URL, 40), len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%dms\t%dms\t%.0f\t%d/%d\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.NavigateMs),
			int64(r.Averages.NavigateP95Ms),
			int64(r.Averages.WaitMs),
			int64(r.Averages.WaitP95Ms),
			r.Averages.Elements,
			r.Successes, len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

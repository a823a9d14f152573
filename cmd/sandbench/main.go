package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

type hardwareInfo struct {
	Hostname    string `json:"hostname"`
	Kernel      string `json:"kernel"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	GoVersion   string `json:"go_version"`
	LogicalCPUs int    `json:"logical_cpus"`
}

type benchReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Target      string           `json:"target"`
	Workload    string           `json:"workload"`
	Hardware    hardwareInfo     `json:"hardware"`
	ColdRuns    []coldRun        `json:"cold_runs"`
	WarmRuns    []warmRun        `json:"warm_runs"`
	CreateStats phaseSummary     `json:"create_summary"`
	FirstExec   phaseSummary     `json:"first_exec_summary"`
	WarmStats   phaseSummary     `json:"warm_summary"`
	Workspace   *workspaceReport `json:"workspace,omitempty"`
}

type coldRun struct {
	SessionID   string  `json:"session_id"`
	ContainerID string  `json:"container_id"`
	CreateMs    float64 `json:"create_ms"`
	FirstExecMs float64 `json:"first_exec_ms"`
	ExitCode    int     `json:"exit_code"`
}

type warmRun struct {
	LatencyMs float64 `json:"latency_ms"`
	ServerMs  float64 `json:"server_ms"`
	ExitCode  int     `json:"exit_code"`
}

type phaseSummary struct {
	Count        int     `json:"count"`
	AvgMs        float64 `json:"avg_ms"`
	MinMs        float64 `json:"min_ms"`
	MaxMs        float64 `json:"max_ms"`
	NonZeroExits int     `json:"non_zero_exits"`
}

type workspaceReport struct {
	PayloadBytes int     `json:"payload_bytes"`
	Runs         int     `json:"runs"`
	WriteAvgMs   float64 `json:"write_avg_ms"`
	ReadAvgMs    float64 `json:"read_avg_ms"`
}

func main() {
	var (
		host     = flag.String("host", "http://127.0.0.1:8080", "sandbox API base URL")
		apiKey   = flag.String("api-key", strings.TrimSpace(os.Getenv("SANDBOX_API_KEY")), "API key (defaults to SANDBOX_API_KEY)")
		coldRuns = flag.Int("cold-runs", 3, "fresh sessions to create, one container start each")
		warmRuns = flag.Int("warm-runs", 10, "exec round trips against one already running session")
		workload = flag.String("workload", "echo sandbench", "command executed in each measured session")
		timeout  = flag.Int("timeout-seconds", 0, "exec timeout sent to the daemon (0 uses the server default)")

		wsKiB  = flag.Int("workspace-kib", 0, "payload size in KiB for the workspace write/read phase (0 disables)")
		wsRuns = flag.Int("workspace-runs", 3, "write/read round trips for the workspace phase")

		keep    = flag.Bool("keep", false, "leave benchmark sessions running instead of deleting them")
		prefix  = flag.String("session-prefix", "bench", "prefix for generated session IDs")
		jsonOut = flag.Bool("json", false, "emit JSON report")
	)
	flag.Parse()

	if *coldRuns < 0 || *warmRuns < 0 || *wsKiB < 0 || *wsRuns <= 0 {
		fail("invalid numeric flags")
	}
	if strings.TrimSpace(*workload) == "" {
		fail("workload must not be empty")
	}

	ctx := context.Background()
	client := newAPIClient(*host, *apiKey)

	rep := benchReport{
		GeneratedAt: time.Now().UTC(),
		Target:      client.baseURL,
		Workload:    *workload,
		Hardware:    collectHardware(),
		ColdRuns:    make([]coldRun, 0, *coldRuns),
		WarmRuns:    make([]warmRun, 0, *warmRuns),
	}

	for i := 0; i < *coldRuns; i++ {
		run, err := runCold(ctx, client, *prefix, *workload, *timeout, *keep)
		if err != nil {
			fail("cold run %d: %v", i+1, err)
		}
		rep.ColdRuns = append(rep.ColdRuns, *run)
	}

	if *warmRuns > 0 || *wsKiB > 0 {
		id := newSessionID(*prefix)
		if _, _, err := client.createSession(ctx, id); err != nil {
			fail("create warm session: %v", err)
		}
		if !*keep {
			defer client.deleteSession(context.Background(), id)
		}
		for i := 0; i < *warmRuns; i++ {
			resp, latency, err := client.execute(ctx, id, *workload, *timeout)
			if err != nil {
				fail("warm run %d: %v", i+1, err)
			}
			rep.WarmRuns = append(rep.WarmRuns, warmRun{
				LatencyMs: toMs(latency),
				ServerMs:  resp.ExecutionTime * 1000.0,
				ExitCode:  resp.ExitCode,
			})
		}
		if *wsKiB > 0 {
			ws, err := runWorkspace(ctx, client, id, *wsKiB*1024, *wsRuns)
			if err != nil {
				fail("workspace phase: %v", err)
			}
			rep.Workspace = ws
		}
	}

	rep.CreateStats, rep.FirstExec = summarizeCold(rep.ColdRuns)
	rep.WarmStats = summarizeWarm(rep.WarmRuns)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
		return
	}
	printReport(rep)
}

func runCold(ctx context.Context, client *apiClient, prefix, workload string, timeout int, keep bool) (*coldRun, error) {
	id := newSessionID(prefix)
	created, createLatency, err := client.createSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !keep {
		defer client.deleteSession(context.Background(), id)
	}
	resp, execLatency, err := client.execute(ctx, id, workload, timeout)
	if err != nil {
		return nil, err
	}
	return &coldRun{
		SessionID:   created.SessionID,
		ContainerID: created.ContainerID,
		CreateMs:    toMs(createLatency),
		FirstExecMs: toMs(execLatency),
		ExitCode:    resp.ExitCode,
	}, nil
}

func runWorkspace(ctx context.Context, client *apiClient, sessionID string, payloadBytes, runs int) (*workspaceReport, error) {
	payload := bytes.Repeat([]byte("sandbench"), payloadBytes/9+1)[:payloadBytes]
	writes := make([]float64, 0, runs)
	reads := make([]float64, 0, runs)
	for i := 0; i < runs; i++ {
		w, err := client.writeFile(ctx, sessionID, ".sandbench/payload.txt", payload)
		if err != nil {
			return nil, fmt.Errorf("write round %d: %w", i+1, err)
		}
		r, err := client.readFile(ctx, sessionID, ".sandbench/payload.txt")
		if err != nil {
			return nil, fmt.Errorf("read round %d: %w", i+1, err)
		}
		writes = append(writes, toMs(w))
		reads = append(reads, toMs(r))
	}
	return &workspaceReport{
		PayloadBytes: payloadBytes,
		Runs:         runs,
		WriteAvgMs:   avg(writes),
		ReadAvgMs:    avg(reads),
	}, nil
}

func summarizeCold(runs []coldRun) (create, firstExec phaseSummary) {
	if len(runs) == 0 {
		return phaseSummary{}, phaseSummary{}
	}
	creates := make([]float64, 0, len(runs))
	execs := make([]float64, 0, len(runs))
	nonZero := 0
	for _, r := range runs {
		creates = append(creates, r.CreateMs)
		execs = append(execs, r.FirstExecMs)
		if r.ExitCode != 0 {
			nonZero++
		}
	}
	create = phaseSummary{Count: len(runs), AvgMs: avg(creates), MinMs: minOf(creates), MaxMs: maxOf(creates)}
	firstExec = phaseSummary{Count: len(runs), AvgMs: avg(execs), MinMs: minOf(execs), MaxMs: maxOf(execs), NonZeroExits: nonZero}
	return create, firstExec
}

func summarizeWarm(runs []warmRun) phaseSummary {
	if len(runs) == 0 {
		return phaseSummary{}
	}
	latencies := make([]float64, 0, len(runs))
	nonZero := 0
	for _, r := range runs {
		latencies = append(latencies, r.LatencyMs)
		if r.ExitCode != 0 {
			nonZero++
		}
	}
	return phaseSummary{
		Count:        len(runs),
		AvgMs:        avg(latencies),
		MinMs:        minOf(latencies),
		MaxMs:        maxOf(latencies),
		NonZeroExits: nonZero,
	}
}

func printReport(rep benchReport) {
	fmt.Printf("Sandbench report (%s)\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Host: %s | Kernel: %s | %s %s/%s (%d CPUs)\n\n",
		rep.Hardware.Hostname,
		rep.Hardware.Kernel,
		rep.Hardware.GoVersion,
		rep.Hardware.OS,
		rep.Hardware.Arch,
		rep.Hardware.LogicalCPUs,
	)

	fmt.Printf("Target %s (workload %q)\n", rep.Target, rep.Workload)
	if rep.CreateStats.Count > 0 {
		fmt.Printf("  Session create: runs=%d avg=%.2fms min=%.2fms max=%.2fms\n",
			rep.CreateStats.Count, rep.CreateStats.AvgMs, rep.CreateStats.MinMs, rep.CreateStats.MaxMs)
		fmt.Printf("  First exec:     runs=%d avg=%.2fms min=%.2fms max=%.2fms non_zero=%d\n",
			rep.FirstExec.Count, rep.FirstExec.AvgMs, rep.FirstExec.MinMs, rep.FirstExec.MaxMs, rep.FirstExec.NonZeroExits)
		ordered := append([]coldRun(nil), rep.ColdRuns...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreateMs < ordered[j].CreateMs })
		for _, r := range ordered {
			fmt.Printf("    - id=%s container=%s create=%.2fms exec=%.2fms exit=%d\n",
				r.SessionID, r.ContainerID, r.CreateMs, r.FirstExecMs, r.ExitCode)
		}
	}
	if rep.WarmStats.Count > 0 {
		fmt.Printf("  Warm exec:      runs=%d avg=%.2fms min=%.2fms max=%.2fms non_zero=%d\n",
			rep.WarmStats.Count, rep.WarmStats.AvgMs, rep.WarmStats.MinMs, rep.WarmStats.MaxMs, rep.WarmStats.NonZeroExits)
	}
	if rep.Workspace != nil {
		fmt.Printf("  Workspace:      payload=%dB runs=%d write_avg=%.2fms read_avg=%.2fms\n",
			rep.Workspace.PayloadBytes, rep.Workspace.Runs, rep.Workspace.WriteAvgMs, rep.Workspace.ReadAvgMs)
	}
}

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	ContainerID string `json:"container_id"`
}

type execResponse struct {
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
}

type fileContent struct {
	Content string `json:"content"`
}

func (c *apiClient) createSession(ctx context.Context, id string) (*createSessionResponse, time.Duration, error) {
	start := time.Now()
	var out createSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", map[string]string{"session_id": id}, &out); err != nil {
		return nil, 0, err
	}
	return &out, time.Since(start), nil
}

func (c *apiClient) execute(ctx context.Context, sessionID, command string, timeout int) (*execResponse, time.Duration, error) {
	body := map[string]any{"session_id": sessionID, "command": command}
	if timeout > 0 {
		body["timeout"] = timeout
	}
	start := time.Now()
	var out execResponse
	if err := c.doJSON(ctx, http.MethodPost, "/execute", body, &out); err != nil {
		return nil, 0, err
	}
	return &out, time.Since(start), nil
}

func (c *apiClient) deleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) writeFile(ctx context.Context, sessionID, path string, data []byte) (time.Duration, error) {
	u := fmt.Sprintf("%s/sessions/%s/workspace/content?path=%s",
		c.baseURL, url.PathEscape(sessionID), url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.setAuth(req)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return 0, fmt.Errorf("PUT workspace content: %s %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return time.Since(start), nil
}

func (c *apiClient) readFile(ctx context.Context, sessionID, path string) (time.Duration, error) {
	p := fmt.Sprintf("/sessions/%s/workspace/content?path=%s",
		url.PathEscape(sessionID), url.QueryEscape(path))
	start := time.Now()
	var out fileContent
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *apiClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func collectHardware() hardwareInfo {
	host, _ := os.Hostname()
	return hardwareInfo{
		Hostname:    host,
		Kernel:      readOneLine("/proc/sys/kernel/osrelease"),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		LogicalCPUs: runtime.NumCPU(),
	}
}

func readOneLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func newSessionID(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "bench"
	}
	return fmt.Sprintf("%s-%d", p, time.Now().UnixNano())
}

func toMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func avg(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func minOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := math.MaxFloat64
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := -math.MaxFloat64
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func fail(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "sandbench: "+msg+"\n", args...)
	os.Exit(1)
}

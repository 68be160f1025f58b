// Benchmark tool for testing the FWA engine against labeled transcripts.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/labeled.csv -url http://localhost:8080
//
// The CSV needs a "label" column (1 = confirmed FWA, 0 = benign) and a
// "text" column with the transcript. This tool:
//   1. Sends each transcript to the engine for analysis
//   2. Compares the engine's verdict (risk level above the reporting
//      floor) with the label
//   3. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTranscript is one row of the benchmark dataset.
type LabeledTranscript struct {
	ID    string
	Text  string
	IsFWA bool
}

// AnalyzeRequest is the engine API request format.
type AnalyzeRequest struct {
	Ref        string `json:"ref"`
	Kind       string `json:"kind"`
	Transcript string `json:"transcript"`
}

// AnalyzeResponse is the engine API response format.
type AnalyzeResponse struct {
	Analysis struct {
		ID                string  `json:"id"`
		RiskLevel         string  `json:"riskLevel"`
		OverallConfidence float64 `json:"overallConfidence"`
		IncidentType      string  `json:"incidentType"`
	} `json:"analysis"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // FWA flagged above the floor
	FalsePositives int64 // Benign flagged above the floor
	TrueNegatives  int64 // Benign below the floor
	FalseNegatives int64 // FWA below the floor (missed!)

	TotalProcessed int64
	TotalFWA       int64
	TotalBenign    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled transcript CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Engine base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum transcripts to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transcript result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("FWA BENCHMARK - labeled transcript detection")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("Engine URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:  %s\n", *tenantID)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: engine not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the engine is running:")
		fmt.Println("  go run cmd/fwa/main.go")
		os.Exit(1)
	}
	fmt.Println("engine is healthy")

	fmt.Printf("\nReading labeled transcripts from %s...\n", *csvPath)
	transcripts, err := readLabeledCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d transcripts\n", len(transcripts))

	fwaCount := 0
	for _, t := range transcripts {
		if t.IsFWA {
			fwaCount++
		}
	}
	fmt.Printf("  - FWA:    %d (%.2f%%)\n", fwaCount, 100*float64(fwaCount)/float64(len(transcripts)))
	fmt.Printf("  - Benign: %d (%.2f%%)\n", len(transcripts)-fwaCount, 100*float64(len(transcripts)-fwaCount)/float64(len(transcripts)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transcripts, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int) ([]LabeledTranscript, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}
	labelCol, ok := colIndex["label"]
	if !ok {
		return nil, fmt.Errorf("missing 'label' column")
	}
	textCol, ok := colIndex["text"]
	if !ok {
		return nil, fmt.Errorf("missing 'text' column")
	}
	idCol, hasID := colIndex["id"]

	var transcripts []LabeledTranscript
	row := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		row++

		t := LabeledTranscript{
			ID:    fmt.Sprintf("row-%d", row),
			Text:  record[textCol],
			IsFWA: record[labelCol] == "1",
		}
		if hasID && record[idCol] != "" {
			t.ID = record[idCol]
		}

		transcripts = append(transcripts, t)

		if limit > 0 && len(transcripts) >= limit {
			break
		}
	}

	return transcripts, nil
}

func runBenchmark(transcripts []LabeledTranscript, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledTranscript, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for t := range work {
				start := time.Now()
				result, err := analyzeTranscript(client, baseURL, tenantID, t)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", t.ID, err)
					}
					continue
				}

				// Track actual labels
				if t.IsFWA {
					atomic.AddInt64(&metrics.TotalFWA, 1)
				} else {
					atomic.AddInt64(&metrics.TotalBenign, 1)
				}

				// Calculate confusion matrix
				predicted := result.Analysis.RiskLevel != "NONE"
				actual := t.IsFWA

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok  "
					if (predicted && !actual) || (!predicted && actual) {
						status = "miss"
					}
					fmt.Printf("%s %-12s | FWA: %-5v | Risk: %-8s (%.2f) | Type: %s\n",
						status,
						t.ID,
						t.IsFWA,
						result.Analysis.RiskLevel,
						result.Analysis.OverallConfidence,
						result.Analysis.IncidentType,
					)
				}
			}
		}()
	}

	for _, t := range transcripts {
		work <- t
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeTranscript(client *http.Client, baseURL, tenantID string, t LabeledTranscript) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{
		Ref:        t.ID,
		Kind:       "transcript",
		Transcript: t.Text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total FWA:        %d\n", m.TotalFWA)
	fmt.Printf("   Total Benign:     %d\n", m.TotalBenign)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                      Predicted")
	fmt.Println("                   FLAG      CLEAR")
	fmt.Printf("   Actual  FWA  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("        Benign  %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actual FWA)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of FWA, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFWA > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFWA) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFWA) * 100
		fmt.Printf("   FWA Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFWA, detectionRate)
		fmt.Printf("   FWA Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFWA, missRate)
	}
	if m.TotalBenign > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalBenign) * 100
		fmt.Printf("   False Alarms:    %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalBenign, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f transcripts/sec\n", tps)
	}

	fmt.Println()
}

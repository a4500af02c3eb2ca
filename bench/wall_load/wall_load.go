package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialwall/bench/stats"
)

// SessionResp is the server's answer to POST /session
type SessionResp struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

// PostReq is the JSON payload for creating a post
type PostReq struct {
	Message string `json:"message"`
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS verification (self-signed certificates)")
	flag.Parse()

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
		Timeout: 10 * time.Second,
	}

	// --- One session per goroutine ---
	fmt.Printf("Opening %d sessions...\n", concurrency)
	sessions := make([]SessionResp, concurrency)
	for i := 0; i < concurrency; i++ {
		b, _ := json.Marshal(map[string]string{"user": fmt.Sprintf("load-user-%d-%d", i, time.Now().UnixNano())})
		resp, err := client.Post(server+"/session", "application/json", bytes.NewReader(b))
		if err != nil {
			panic(fmt.Sprintf("failed to open session: %v", err))
		}
		if err := json.NewDecoder(resp.Body).Decode(&sessions[i]); err != nil {
			resp.Body.Close()
			panic(fmt.Sprintf("failed to decode session response: %v", err))
		}
		resp.Body.Close()
	}
	fmt.Println("Sessions opened.")

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests, successes, errors4xx, errors5xx int64
	latencySlices := make([][]float64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			token := sessions[idx].Token
			var local []float64

			// Alternate writes and full-wall reads until the test duration ends
			for n := 0; time.Now().Before(stopTime); n++ {
				var req *http.Request
				if n%2 == 0 {
					b, _ := json.Marshal(PostReq{Message: fmt.Sprintf("load test post %d", time.Now().UnixNano())})
					req, _ = http.NewRequestWithContext(context.Background(), http.MethodPost, server+"/posts", bytes.NewReader(b))
					req.Header.Set("Content-Type", "application/json")
				} else {
					req, _ = http.NewRequestWithContext(context.Background(), http.MethodGet, server+"/posts", nil)
				}
				req.Header.Set("Authorization", "Bearer "+token)

				start := time.Now()
				resp, err := client.Do(req)
				local = append(local, time.Since(start).Seconds()*1000)
				atomic.AddInt64(&requests, 1)
				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&successes, 1)
					io.Copy(io.Discard, resp.Body)
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&errors4xx, 1)
					body, _ := io.ReadAll(resp.Body)
					fmt.Printf("Status %d: %s\n", resp.StatusCode, string(body))
				default:
					atomic.AddInt64(&errors5xx, 1)
					body, _ := io.ReadAll(resp.Body)
					fmt.Printf("Status %d: %s\n", resp.StatusCode, string(body))
				}
				resp.Body.Close()
			}
			latencySlices[idx] = local
		}(i)
	}
	wg.Wait()

	var all []float64
	for _, s := range latencySlices {
		all = append(all, s...)
	}
	summary := stats.Summarize(all, trimPercent)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): %s\n", summary)

	if err := stats.WriteCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to save CSV: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"example.com/socialwall/bench/stats"
	"github.com/gorilla/websocket"
)

// Post mirrors the API's post JSON.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Measures how long a post takes to show up on open live feeds:
// POST /posts -> bus -> relay -> hub -> wall re-read -> websocket push.
func main() {
	var serverAddr string
	var viewers, posts, concurrency, timeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&viewers, "viewers", 20, "number of open live feeds")
	flag.IntVar(&posts, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 10, "concurrency for posting")
	flag.IntVar(&timeout, "timeout", 10, "seconds to wait for delivery")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS verification (self-signed certificates)")
	flag.Parse()

	tlsCfg := &tls.Config{InsecureSkipVerify: insecure}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}, Timeout: 10 * time.Second}
	dialer := websocket.Dialer{TLSClientConfig: tlsCfg, HandshakeTimeout: 10 * time.Second}
	wsBase := "ws" + strings.TrimPrefix(serverAddr, "http")

	// --- 1) Open live feeds; each records when it first sees a post ---
	var mu sync.Mutex
	seen := make(map[string][]time.Time) // post id -> arrival per viewer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var viewersWG sync.WaitGroup
	fmt.Printf("Opening %d live feeds...\n", viewers)
	for i := 0; i < viewers; i++ {
		conn, _, err := dialer.Dial(fmt.Sprintf("%s/posts/live?user=viewer-%d", wsBase, i), nil)
		if err != nil {
			fmt.Printf("dial error: %v\n", err)
			os.Exit(1)
		}
		viewersWG.Add(1)
		go func(conn *websocket.Conn) {
			defer viewersWG.Done()
			defer conn.Close()
			go func() {
				<-ctx.Done()
				conn.Close()
			}()
			known := make(map[string]bool)
			for {
				var list []Post
				if err := conn.ReadJSON(&list); err != nil {
					return
				}
				now := time.Now()
				mu.Lock()
				for _, p := range list {
					if !known[p.ID] {
						known[p.ID] = true
						seen[p.ID] = append(seen[p.ID], now)
					}
				}
				mu.Unlock()
			}
		}(conn)
	}

	// --- 2) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", posts, concurrency)
	type sentPost struct {
		ID   string
		Sent time.Time
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	sentCh := make(chan sentPost, posts)

	for i := 0; i < posts; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			b, _ := json.Marshal(map[string]string{"message": fmt.Sprintf("post %d", rand.Int())})
			url := fmt.Sprintf("%s/posts?user=author-%d", serverAddr, rand.Intn(10))
			start := time.Now()
			resp, err := client.Post(url, "application/json", bytes.NewReader(b))
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			var p Post
			err = json.NewDecoder(resp.Body).Decode(&p)
			resp.Body.Close()
			if err != nil || p.ID == "" {
				fmt.Printf("decode post error: %v\n", err)
				return
			}
			sentCh <- sentPost{ID: p.ID, Sent: start}
		}()
	}
	wg.Wait()
	close(sentCh)

	// --- 3) Wait for delivery, then collect latencies ---
	fmt.Println("Waiting for live delivery...")
	var sent []sentPost
	for sp := range sentCh {
		sent = append(sent, sp)
	}
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := true
		for _, sp := range sent {
			if len(seen[sp.ID]) < viewers {
				done = false
				break
			}
		}
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	cancel()
	viewersWG.Wait()

	var latencies []float64
	var missing int
	for _, sp := range sent {
		arrivals := seen[sp.ID]
		missing += viewers - len(arrivals)
		for _, at := range arrivals {
			latencies = append(latencies, at.Sub(sp.Sent).Seconds()*1000)
		}
	}

	if len(latencies) == 0 {
		fmt.Println("No live deliveries recorded.")
		return
	}
	fmt.Printf("Delivery stats (ms): %s missing=%d\n", stats.Summarize(latencies, 1.0), missing)
	if err := stats.WriteCSV("live_latencies.csv", latencies); err != nil {
		fmt.Printf("Failed to save CSV: %v\n", err)
		return
	}
	fmt.Println("Saved live_latencies.csv")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"example.com/socialwall/internal/broker"
)

// Floods the change topic with post notifications to measure how the relay
// and the live feeds cope with bursts. Every event makes each open live feed
// re-read the wall, so this exercises store reads as well.
func main() {
	var total, numWorkers int
	var kafkaBroker, topic, table string

	flag.IntVar(&total, "n", 10000, "total number of events to send")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel goroutines")
	flag.StringVar(&kafkaBroker, "broker", "localhost:29092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "wall-changes", "change topic")
	flag.StringVar(&table, "table", "posts", "table named in the events")
	flag.Parse()

	writer, err := broker.NewKafkaWriter(broker.KafkaConfig{
		Brokers:      []string{kafkaBroker},
		Topic:        topic,
		WriteTimeout: 10 * time.Second,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create Kafka writer: %v", err))
	}
	pub := &broker.KafkaPublisher{Writer: writer}
	defer pub.Close()

	start := time.Now()
	var successCount, failCount uint64

	// Channel for feeding event indexes to worker goroutines
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if err := pub.Publish(context.Background(), broker.NewEvent(table, broker.Insert)); err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("write error: %v\n", err)
					continue
				}
				atomic.AddUint64(&successCount, 1)
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f events/s\n", float64(successCount)/elapsed.Seconds())
}

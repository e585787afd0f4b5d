package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/logger"
)

type Stats struct {
	published   atomic.Int64
	failed      atomic.Int64
	bytes       atomic.Int64
	latencies   []time.Duration
	latenciesMu sync.Mutex
}

func (s *Stats) Record(d time.Duration, size int, err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.published.Add(1)
	s.bytes.Add(int64(size))
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, d)
	s.latenciesMu.Unlock()
}

var sentences = []string{
	"The shard router assigns documents to partitions.",
	"Mary reviewed the annotation guidelines on Monday.",
	"Tokens are lower-cased before stemming!",
	"Does the coverage index survive a new admission?",
	"John met Mary in Paris.",
	"Every group keeps its members sorted by id.",
	"Parsers emit dependency links between tokens.",
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	concurrency := flag.Int("concurrency", 4, "number of concurrent publishers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	perDoc := flag.Int("sentences", 5, "sentences per generated document")
	withEntities := flag.Bool("entities", true, "attach pre-annotated Entity spans")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents)
	defer producer.Close()

	fmt.Println("=== DataPack Document Load Generator ===")
	fmt.Printf("Brokers:     %s\n", strings.Join(cfg.Kafka.Brokers, ","))
	fmt.Printf("Topic:       %s\n", cfg.Kafka.Topics.Documents)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Println()

	stats := run(producer, *concurrency, *duration, *perDoc, *withEntities)
	printReport(stats, *duration)
}

func run(producer *kafka.Producer, concurrency int, duration time.Duration, perDoc int, withEntities bool) *Stats {
	stats := &Stats{}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := worker; ctx.Err() == nil; n += concurrency {
				doc := generate(n, perDoc, withEntities)
				start := time.Now()
				err := producer.Publish(ctx, kafka.Event{Key: doc.DocID, Value: doc})
				stats.Record(time.Since(start), len(doc.Text), err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

// generate builds a document from the sentence pool. Capitalised words
// after the first of each sentence are marked as Entity annotations.
func generate(n, perDoc int, withEntities bool) *ingest.Document {
	var b strings.Builder
	doc := &ingest.Document{DocID: uuid.NewString(), ReceivedAt: time.Now().UTC()}
	for i := 0; i < perDoc; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		s := sentences[(n+i)%len(sentences)]
		base := b.Len()
		b.WriteString(s)
		if !withEntities {
			continue
		}
		for j, word := range wordSpans(s) {
			if j == 0 || s[word[0]] < 'A' || s[word[0]] > 'Z' {
				continue
			}
			doc.Entries = append(doc.Entries, ingest.EntryPayload{
				Kind:      "annotation",
				Type:      "Entity",
				Component: "loadgen",
				Span:      &[2]int{base + word[0], base + word[1]},
				Fields:    map[string]any{"label": "PROPER"},
			})
		}
	}
	doc.Text = b.String()
	return doc
}

func wordSpans(s string) [][2]int {
	var out [][2]int
	start := -1
	for i := 0; i <= len(s); i++ {
		letter := i < len(s) && (s[i] >= 'a' && s[i] <= 'z' || s[i] >= 'A' && s[i] <= 'Z')
		switch {
		case letter && start < 0:
			start = i
		case !letter && start >= 0:
			out = append(out, [2]int{start, i})
			start = -1
		}
	}
	return out
}

func printReport(stats *Stats, duration time.Duration) {
	published := stats.published.Load()
	failed := stats.failed.Load()
	total := published + failed

	fmt.Println("=== Results ===")
	fmt.Printf("Published:   %d\n", published)
	fmt.Printf("Failed:      %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:  %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Docs/sec:    %.2f\n", float64(published)/duration.Seconds())
		fmt.Printf("Text MB:     %.2f\n", float64(stats.bytes.Load())/(1<<20))
	}

	stats.latenciesMu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Publish Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	if published == 0 {
		fmt.Println()
		fmt.Println("WARNING: nothing was published. Is Kafka running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

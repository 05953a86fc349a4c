// Worker archives audit events from Kafka into Loki. Offsets are committed only after a batch is
// pushed, so a Loki outage replays events instead of losing them.
// Set KAFKA_BROKERS, AUDIT_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"esign-workflow/internal/config"
	"esign-workflow/internal/telemetry/loki"
)

const (
	batchSize   = 100
	batchWindow = 2 * time.Second
	retryDelay  = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.AuditKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	log.Printf("worker: consuming %s (group %s), pushing to %s", cfg.AuditKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)

	for {
		batch, err := fetchBatch(ctx, reader)
		if len(batch) > 0 {
			archive(ctx, reader, client, batch)
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Println("worker: stopped")
				return
			}
			log.Printf("worker: kafka read error: %v", err)
		}
	}
}

// fetchBatch reads until batchSize messages or batchWindow has passed since the first one.
func fetchBatch(ctx context.Context, r *kafka.Reader) ([]kafka.Message, error) {
	var batch []kafka.Message
	first, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch = append(batch, first)
	wctx, cancel := context.WithTimeout(ctx, batchWindow)
	defer cancel()
	for len(batch) < batchSize {
		m, err := r.FetchMessage(wctx)
		if err != nil {
			if wctx.Err() != nil && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// archive pushes until Loki accepts the batch or ctx ends, then commits the offsets.
func archive(ctx context.Context, r *kafka.Reader, client *loki.Client, batch []kafka.Message) {
	entries := make([]loki.Entry, 0, len(batch))
	for _, m := range batch {
		entries = append(entries, loki.EntryFromAudit(m.Value))
	}
	for {
		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		err := client.Push(pushCtx, entries...)
		pushCancel()
		if err == nil {
			break
		}
		log.Printf("worker: loki push of %d events failed: %v", len(entries), err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
	if err := r.CommitMessages(ctx, batch...); err != nil {
		log.Printf("worker: commit failed: %v", err)
	}
}

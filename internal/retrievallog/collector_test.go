package retrievallog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bochiedev/tulia-retrieval/pkg/kafka"
)

type capturingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *capturingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	batch := make([]kafka.Event, len(events))
	copy(batch, events)
	p.batches = append(p.batches, batch)
	return nil
}

func (p *capturingPublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func record(tenantID string) Record {
	return Record{
		ID:        "id-" + tenantID,
		TenantID:  tenantID,
		Query:     "blue widget",
		Returned:  3,
		Timestamp: time.Now().UTC(),
	}
}

func TestTrackFlushesWhenBatchFills(t *testing.T) {
	pub := &capturingPublisher{}
	c := NewCollector(pub, 2, time.Hour)

	c.Track(record("tenant-a"))
	c.Track(record("tenant-b"))

	deadline := time.Now().Add(time.Second)
	for pub.batchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.batchCount() != 1 {
		t.Fatalf("expected one flushed batch, got %d", pub.batchCount())
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches[0]) != 2 {
		t.Errorf("expected 2 events in the batch, got %d", len(pub.batches[0]))
	}
	if pub.batches[0][0].Key != "tenant-a" {
		t.Errorf("events must be keyed by tenant, got %q", pub.batches[0][0].Key)
	}
}

func TestShutdownFlushesRemainder(t *testing.T) {
	pub := &capturingPublisher{}
	c := NewCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(record("tenant-a"))
	cancel()
	c.Close()

	if pub.batchCount() != 1 {
		t.Fatalf("expected the final flush to run, got %d batches", pub.batchCount())
	}
}

func TestFailedFlushDropsRecords(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 1, time.Hour)

	c.Track(record("tenant-a"))

	deadline := time.Now().Add(2 * time.Second)
	for c.BufferLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.BufferLen() != 0 {
		t.Error("records must be dropped, not retried forever")
	}
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"entitlement-workers/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
)

type ElasticsearchConfig struct {
	IndexPrefix string
	FlushSize   int
	FlushEvery  time.Duration
}

// ElasticsearchRecorder batches events and bulk-indexes them into daily indices named
// <prefix>-YYYY.MM.DD. Events are dropped when the buffer is full.
type ElasticsearchRecorder struct {
	es     *elasticsearch.Client
	cfg    ElasticsearchConfig
	logger logger.Logger

	ch   chan Event
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewElasticsearchRecorder(es *elasticsearch.Client, cfg ElasticsearchConfig, log logger.Logger) *ElasticsearchRecorder {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 200
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 2 * time.Second
	}
	return &ElasticsearchRecorder{
		es:     es,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "audit-es"}),
		ch:     make(chan Event, cfg.FlushSize*4),
		stop:   make(chan struct{}),
	}
}

// IndexName returns the daily index an event lands in.
func IndexName(prefix string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%04d.%02d.%02d", prefix, t.Year(), int(t.Month()), t.Day())
}

func (r *ElasticsearchRecorder) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop flushes buffered events and waits for the loop, or for ctx to expire.
func (r *ElasticsearchRecorder) Stop(ctx context.Context) {
	r.once.Do(func() { close(r.stop) })
	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *ElasticsearchRecorder) Record(_ context.Context, ev Event) {
	select {
	case r.ch <- ev:
	default:
		r.logger.Warn("audit buffer full, dropping event", map[string]interface{}{"eventId": ev.ID})
	}
}

func (r *ElasticsearchRecorder) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.FlushEvery)
	defer ticker.Stop()

	batch := make([]Event, 0, r.cfg.FlushSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.bulkIndex(batch); err != nil {
			r.logger.Error("audit bulk index failed", map[string]interface{}{
				"events": len(batch),
				"error":  err,
			})
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-r.ch:
			batch = append(batch, ev)
			if len(batch) >= r.cfg.FlushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stop:
			for {
				select {
				case ev := <-r.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *ElasticsearchRecorder) bulkIndex(batch []Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range batch {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": IndexName(r.cfg.IndexPrefix, ev.At), "_id": ev.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := r.es.Bulk(&buf, r.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("bulk request returned %s: %s", res.Status(), string(body))
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err == nil && parsed.Errors {
		return fmt.Errorf("bulk response reported item errors")
	}
	return nil
}

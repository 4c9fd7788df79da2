// Package export ships transaction receipts and pool snapshots to a webhook
// in batches.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Record is one exported item
type Record struct {
	// Type is "receipt" or "snapshot"
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExporterConfig holds configuration for exporting
type ExporterConfig struct {
	BatchSize      int           `json:"batch_size"`
	ExportInterval time.Duration `json:"export_interval"`
	WebhookURL     string        `json:"webhook_url"`
	WebhookAPIKey  string        `json:"webhook_api_key,omitempty"`
	RetryMax       int           `json:"retry_max"`
}

// Exporter batches records and posts them to a webhook
type Exporter struct {
	config     ExporterConfig
	httpClient *retryablehttp.Client

	mutex      sync.Mutex
	batch      []Record
	lastExport time.Time
	exported   int
	failed     int

	cancel context.CancelFunc
	done   chan struct{}
	flush  chan struct{}
}

// Batch is the body posted to the webhook
type Batch struct {
	Records    []Record `json:"records"`
	ExportTime string   `json:"export_time"`
	Count      int      `json:"count"`
}

// NewExporter creates an exporter. It does not export until Start.
func NewExporter(config ExporterConfig) (*Exporter, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.ExportInterval <= 0 {
		config.ExportInterval = time.Minute
	}
	if config.RetryMax <= 0 {
		config.RetryMax = 3
	}

	c := retryablehttp.NewClient()
	c.RetryMax = config.RetryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil

	return &Exporter{
		config:     config,
		httpClient: c,
		batch:      make([]Record, 0, config.BatchSize),
		flush:      make(chan struct{}, 1),
	}, nil
}

// Start runs periodic exports until ctx is done or Stop is called
func (e *Exporter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.periodicExport(ctx)
	logrus.WithFields(logrus.Fields{
		"url":      e.config.WebhookURL,
		"interval": e.config.ExportInterval,
	}).Info("Exporter started")
}

// Add queues records; a full batch triggers an export
func (e *Exporter) Add(records ...Record) {
	if len(records) == 0 {
		return
	}
	e.mutex.Lock()
	e.batch = append(e.batch, records...)
	full := len(e.batch) >= e.config.BatchSize
	e.mutex.Unlock()

	if full {
		select {
		case e.flush <- struct{}{}:
		default:
		}
	}
}

func (e *Exporter) periodicExport(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-e.flush:
		case <-ctx.Done():
			return
		}
		if err := e.Flush(ctx); err != nil {
			logrus.Errorf("Failed to export to webhook: %v", err)
		}
	}
}

// Flush posts every queued record now. Records of a failed post are dropped.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return nil
	}
	records := e.batch
	e.batch = make([]Record, 0, e.config.BatchSize)
	e.lastExport = time.Now()
	e.mutex.Unlock()

	err := e.exportToWebhook(ctx, records)

	e.mutex.Lock()
	if err != nil {
		e.failed += len(records)
	} else {
		e.exported += len(records)
	}
	e.mutex.Unlock()
	if err == nil {
		logrus.Debugf("Exported %d records", len(records))
	}
	return err
}

func (e *Exporter) exportToWebhook(ctx context.Context, records []Record) error {
	jsonData, err := json.Marshal(Batch{
		Records:    records,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends periodic exports and flushes what is left
func (e *Exporter) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	return e.Flush(ctx)
}

// Status summarizes the exporter
type Status struct {
	Pending    int       `json:"pending"`
	Exported   int       `json:"exported"`
	Failed     int       `json:"failed"`
	LastExport time.Time `json:"last_export,omitempty"`
}

// GetExporterStatus returns the current status of the exporter
func (e *Exporter) GetExporterStatus() Status {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return Status{
		Pending:    len(e.batch),
		Exported:   e.exported,
		Failed:     e.failed,
		LastExport: e.lastExport,
	}
}

// Package ledger records every network retrieval the crawler makes. Rows go
// to an optional Store and notifications to an optional Publisher; with
// neither configured the ledger only logs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/fetcher/download"
)

// Kind distinguishes page fetches from file downloads.
type Kind string

const (
	KindPage     Kind = "page"
	KindDownload Kind = "download"
)

// Record is one retrieval.
type Record struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	Site        string        `json:"site"`
	Kind        Kind          `json:"kind"`
	URL         string        `json:"url"`
	FinalURL    string        `json:"final_url,omitempty"`
	StatusCode  int           `json:"status_code"`
	Bytes       int64         `json:"bytes"`
	Location    string        `json:"location,omitempty"`
	RetrievedAt time.Time     `json:"retrieved_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Store persists records.
type Store interface {
	StoreRetrieval(ctx context.Context, record Record) error
}

// Publisher sends a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator issues record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Config wires a Ledger.
type Config struct {
	SessionID string
	Site      string
	Store     Store
	Publisher Publisher
	Topic     string
	IDs       IDGenerator
	Clock     Clock
	Logger    *zap.Logger
}

// Ledger fills in identity fields and fans records out.
type Ledger struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Ledger. IDs and Clock are required.
func New(cfg Config) (*Ledger, error) {
	if cfg.IDs == nil {
		return nil, fmt.Errorf("ledger: id generator is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ledger: clock is required")
	}
	if cfg.Publisher != nil && cfg.Topic == "" {
		return nil, fmt.Errorf("ledger: topic is required with a publisher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{cfg: cfg, logger: logger}, nil
}

// Record stores and publishes rec. Both sinks are attempted; their errors are
// joined.
func (l *Ledger) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := l.cfg.IDs.NewID()
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		rec.ID = id
	}
	if rec.SessionID == "" {
		rec.SessionID = l.cfg.SessionID
	}
	if rec.Site == "" {
		rec.Site = l.cfg.Site
	}
	if rec.RetrievedAt.IsZero() {
		rec.RetrievedAt = l.cfg.Clock.Now().UTC()
	}

	var errs []error
	if l.cfg.Store != nil {
		if err := l.cfg.Store.StoreRetrieval(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("store retrieval: %w", err))
		}
	}
	if l.cfg.Publisher != nil {
		if _, err := l.cfg.Publisher.Publish(ctx, l.cfg.Topic, rec); err != nil {
			errs = append(errs, fmt.Errorf("publish retrieval: %w", err))
		}
	}
	l.logger.Debug("retrieval recorded",
		zap.String("id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("url", rec.URL),
		zap.Int("status", rec.StatusCode),
	)
	return errors.Join(errs...)
}

// Downloaded records a completed download. Failures are logged.
func (l *Ledger) Downloaded(ctx context.Context, result download.Result) {
	err := l.Record(ctx, Record{
		Kind:       KindDownload,
		URL:        result.URL,
		StatusCode: result.Status,
		Bytes:      result.Bytes,
		Location:   result.Path,
		Duration:   result.Duration,
	})
	if err != nil {
		l.logger.Warn("failed to record download", zap.String("url", result.URL), zap.Error(err))
	}
}

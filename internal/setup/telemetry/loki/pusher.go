package loki

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/warden/internal/setup/config"
)

// ErrUnexpectedStatusCode is returned when Loki responds with an unexpected status code.
var ErrUnexpectedStatusCode = errors.New("unexpected status code from Loki")

const (
	defaultBatchMaxSize = 500
	defaultBatchMaxWait = 2 * time.Second
	pushTimeout         = 10 * time.Second
)

// Pusher batches log lines and ships them to Loki in the background.
// Lines are dropped rather than blocking the caller when the buffer is full.
type Pusher struct {
	pushURL  string
	username string
	password string
	labels   map[string]string
	maxSize  int
	maxWait  time.Duration
	client   *http.Client

	lines   chan line
	quit    chan struct{}
	done    chan struct{}
	stopped sync.Once
	batch   []line
}

// NewPusher starts a pusher for the given configuration. extraLabels are
// merged over the configured labels.
func NewPusher(cfg *config.Loki, extraLabels map[string]string) *Pusher {
	maxSize := cfg.BatchMaxSize
	if maxSize <= 0 {
		maxSize = defaultBatchMaxSize
	}

	maxWait := time.Duration(cfg.BatchMaxWaitMS) * time.Millisecond
	if maxWait <= 0 {
		maxWait = defaultBatchMaxWait
	}

	labels := make(map[string]string, len(cfg.Labels)+len(extraLabels))
	maps.Copy(labels, cfg.Labels)
	maps.Copy(labels, extraLabels)

	p := &Pusher{
		pushURL:  cfg.URL + "/loki/api/v1/push",
		username: cfg.Username,
		password: cfg.Password,
		labels:   labels,
		maxSize:  maxSize,
		maxWait:  maxWait,
		client:   &http.Client{Timeout: pushTimeout},
		lines:    make(chan line, maxSize*2),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		batch:    make([]line, 0, maxSize),
	}

	go p.run()

	return p
}

// Add queues a line for shipping.
func (p *Pusher) Add(ts time.Time, text string) {
	select {
	case p.lines <- line{unixNano: ts.UnixNano(), text: text}:
	default:
		log.Printf("Loki buffer full, dropping log line")
	}
}

// Stop flushes queued lines and stops the background goroutine.
func (p *Pusher) Stop() {
	p.stopped.Do(func() {
		close(p.quit)
		<-p.done
	})
}

func (p *Pusher) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			// Drain whatever is still buffered before the final push
			for {
				select {
				case l := <-p.lines:
					p.batch = append(p.batch, l)
				default:
					p.flush()
					return
				}
			}
		case l := <-p.lines:
			p.batch = append(p.batch, l)
			if len(p.batch) >= p.maxSize {
				p.flush()
			}
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *Pusher) flush() {
	if len(p.batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := p.send(ctx, p.batch); err != nil {
		log.Printf("Failed to push %d log lines to Loki: %v", len(p.batch), err)
	}

	p.batch = p.batch[:0]
}

// send transmits one batch as a single gzip-compressed stream.
func (p *Pusher) send(ctx context.Context, batch []line) error {
	values := make([][2]string, len(batch))
	for i, l := range batch {
		values[i] = [2]string{strconv.FormatInt(l.unixNano, 10), l.text}
	}

	payload, err := sonic.Marshal(pushRequest{
		Streams: []stream{{Stream: p.labels, Values: values}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode push request: %w", err)
	}

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pushURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	if p.username != "" && p.password != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}

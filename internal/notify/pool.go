package notify

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/tickets/qr_image"
)

// Sink is where rendered notifications go, normally the Kafka producer.
type Sink interface {
	Publish(topic, key string, value []byte) error
}

type job struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	QRImage string `json:"qr_image,omitempty"`
}

// Pool delivers notifications through a fixed set of workers over a bounded
// queue. Delivery is best-effort: when the queue is full the job is dropped
// and counted rather than blocking the caller.
type Pool struct {
	sink    Sink
	topic   string
	logger  *logger.Logger
	jobs    chan job
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewPool(sink Sink, topic string, workers, queueSize int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{
		sink:   sink,
		topic:  topic,
		logger: log,
		jobs:   make(chan job, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		payload, _ := json.Marshal(j)
		if err := p.sink.Publish(p.topic, j.UserID, payload); err != nil {
			p.failed.Add(1)
			p.logger.Error("NOTIFY", fmt.Sprintf("Failed to deliver %s notification to %s: %v", j.Kind, j.UserID, err))
		}
	}
}

func (p *Pool) enqueue(j job) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.jobs <- j:
	default:
		p.dropped.Add(1)
		p.logger.Warn("NOTIFY", fmt.Sprintf("Queue full, dropped %s notification for %s", j.Kind, j.UserID))
	}
}

// Notify queues a plain message for the user.
func (p *Pool) Notify(userID, message string) {
	p.enqueue(job{UserID: userID, Kind: "message", Message: message})
}

// DeliverCredential queues the issued ticket credential for the holder. The
// payload carries the QR token, the backup code and a rendered QR PNG so the
// downstream channel can embed it directly.
func (p *Pool) DeliverCredential(holderID, ticketID, qrToken, backupCode string) {
	j := job{
		UserID:  holderID,
		Kind:    "credential",
		Message: fmt.Sprintf("Ticket %s issued. QR token: %s, backup code: %s", ticketID, qrToken, backupCode),
	}
	if png, err := qr_image.Render(qrToken); err != nil {
		p.logger.Error("NOTIFY", fmt.Sprintf("Failed to render QR image for ticket %s: %v", ticketID, err))
	} else {
		j.QRImage = base64.StdEncoding.EncodeToString(png)
	}
	p.enqueue(j)
}

// Dropped and Failed expose delivery counters for logging and tests.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }
func (p *Pool) Failed() int64  { return p.failed.Load() }

// Close stops intake and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	if d := p.dropped.Load(); d > 0 {
		p.logger.Warn("NOTIFY", fmt.Sprintf("%d notifications were dropped under load", d))
	}
}

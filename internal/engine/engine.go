package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kidconnect/broadcast/internal/directory"
	"github.com/kidconnect/broadcast/internal/gateway"
	"github.com/kidconnect/broadcast/internal/ledger"
	"github.com/kidconnect/broadcast/internal/metrics"
)

// ErrEmptyBody rejects a dispatch before any recipient is contacted.
var ErrEmptyBody = errors.New("broadcast body must not be empty")

// Request is one dispatch call: a message body and a group filter.
type Request struct {
	GroupFilter string
	Body        string
	RequestedAt time.Time
}

// BatchResult is the accounting for one dispatch. Sent+Skipped+Failed always
// equals the number of processed recipients, and each processed recipient
// appears exactly once in Outcomes. Incomplete marks a batch cut short by
// cancellation or a ledger write failure; outcomes recorded up to that point
// are kept, never discarded.
type BatchResult struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	Sent       int              `json:"sent"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Incomplete bool             `json:"incomplete"`
	Outcomes   []ledger.Attempt `json:"outcomes"`
}

// Config holds engine tuning.
type Config struct {
	// MaxAttempts is the delivery attempt budget per recipient.
	MaxAttempts int
	// RetryBackoff is the base backoff between attempts; doubled each retry.
	RetryBackoff time.Duration
	// RecipientInterval is the minimum spacing between gateway sends,
	// protecting the provider's sandbox-tier rate limit. Zero disables
	// pacing. Skipped recipients are processed without delay.
	RecipientInterval time.Duration
}

// Engine drives a broadcast: selects eligible recipients, gates them on the
// allow list, delivers through the gateway with retry, and appends every
// outcome to the ledger.
type Engine struct {
	dir     *directory.Directory
	gw      gateway.Gateway
	led     ledger.Ledger
	retry   *RetryStrategy
	quota   *SendQuota
	limiter *rate.Limiter
	log     zerolog.Logger

	// mu serializes dispatches; only one batch runs at a time.
	mu sync.Mutex
}

// New creates an Engine. quota may be nil to disable quota tracking.
func New(cfg Config, dir *directory.Directory, gw gateway.Gateway, led ledger.Ledger, quota *SendQuota, log zerolog.Logger) *Engine {
	var limiter *rate.Limiter
	if cfg.RecipientInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RecipientInterval), 1)
	}

	return &Engine{
		dir:     dir,
		gw:      gw,
		led:     led,
		retry:   NewRetryStrategy(cfg.MaxAttempts, cfg.RetryBackoff),
		quota:   quota,
		limiter: limiter,
		log:     log,
	}
}

// Dispatch runs one broadcast batch. It returns ErrEmptyBody or
// ErrQuotaExceeded before any recipient is contacted, and a PersistenceError
// alongside the partial result when a ledger write fails mid-batch.
// Cancellation between recipients yields a partial result marked Incomplete
// with a nil error. An empty selection is a valid all-zero result.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*BatchResult, error) {
	if strings.TrimSpace(req.Body) == "" {
		metrics.BroadcastsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyBody
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.quota.Check(ctx); err != nil {
		metrics.BroadcastsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Holding the roster for the whole batch keeps ReplaceRoster out
	// until the last recipient is accounted for.
	recipients, release := e.dir.BeginBroadcast(req.GroupFilter)
	defer release()

	res := &BatchResult{
		BatchID:  uuid.New(),
		Outcomes: make([]ledger.Attempt, 0, len(recipients)),
	}

	log := e.log.With().
		Stringer("batch_id", res.BatchID).
		Str("group_filter", req.GroupFilter).
		Int("selected", len(recipients)).
		Logger()
	log.Info().Msg("broadcast started")

	for _, r := range recipients {
		select {
		case <-ctx.Done():
			res.Incomplete = true
			log.Warn().Int("processed", len(res.Outcomes)).Msg("broadcast cancelled")
			metrics.BroadcastsTotal.WithLabelValues("incomplete").Inc()
			return res, nil
		default:
		}

		if !e.dir.IsAuthorized(r.Identifier) {
			skip := ledger.Attempt{
				Timestamp:       time.Now(),
				BatchID:         res.BatchID,
				RecipientID:     r.Identifier,
				RecipientName:   r.DisplayName,
				GroupTag:        r.GroupTag,
				Body:            req.Body,
				Outcome:         ledger.OutcomeSkipped,
				ProviderMessage: "not on allow list",
			}
			if err := e.record(ctx, res, skip); err != nil {
				return res, err
			}
			res.Skipped++
			metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
			log.Debug().Str("recipient", r.Identifier).Msg("recipient skipped")
			continue
		}

		// Pace gateway sends; skips above bypass the limiter entirely.
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				res.Incomplete = true
				log.Warn().Int("processed", len(res.Outcomes)).Msg("broadcast cancelled")
				metrics.BroadcastsTotal.WithLabelValues("incomplete").Inc()
				return res, nil
			}
		}

		text := renderMessage(r.DisplayName, req.Body)
		outcome, attemptNum, sendErr := e.deliver(ctx, r.Identifier, text)

		a := ledger.Attempt{
			Timestamp:     time.Now(),
			BatchID:       res.BatchID,
			RecipientID:   r.Identifier,
			RecipientName: r.DisplayName,
			GroupTag:      r.GroupTag,
			Body:          text,
			AttemptNumber: attemptNum,
		}
		if sendErr != nil {
			a.Outcome = ledger.OutcomeFailed
			a.ProviderMessage = sendErr.Error()
			var ge *gateway.GatewayError
			if errors.As(sendErr, &ge) {
				a.StatusCode = ge.StatusCode
			}
		} else {
			a.Outcome = ledger.OutcomeSent
			a.StatusCode = outcome.StatusCode
			a.ProviderMessage = outcome.ProviderMessage
		}

		if err := e.record(ctx, res, a); err != nil {
			return res, err
		}

		if sendErr != nil {
			res.Failed++
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			log.Error().Err(sendErr).
				Str("recipient", r.Identifier).
				Int("attempts", attemptNum).
				Msg("delivery failed")
			continue
		}

		res.Sent++
		metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		if err := e.quota.Increment(ctx); err != nil {
			log.Warn().Err(err).Msg("quota increment failed")
		}
		log.Info().
			Str("recipient", r.Identifier).
			Str("provider_message_id", outcome.ProviderMessageID).
			Int("attempts", attemptNum).
			Msg("message delivered")
	}

	log.Info().
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("broadcast completed")
	metrics.BroadcastsTotal.WithLabelValues("completed").Inc()
	return res, nil
}

// record appends one attempt to the ledger and mirrors it into the result.
// A ledger failure marks the batch incomplete and aborts it.
func (e *Engine) record(ctx context.Context, res *BatchResult, a ledger.Attempt) error {
	if err := e.led.Append(ctx, a); err != nil {
		res.Incomplete = true
		metrics.BroadcastsTotal.WithLabelValues("incomplete").Inc()
		e.log.Error().Err(err).
			Stringer("batch_id", res.BatchID).
			Str("recipient", a.RecipientID).
			Msg("ledger append failed, aborting batch")
		return fmt.Errorf("record outcome for %s: %w", a.RecipientID, err)
	}
	res.Outcomes = append(res.Outcomes, a)
	return nil
}

// deliver attempts the send up to the retry budget, backing off between
// attempts. Permanent rejections terminate immediately. Returns the attempt
// number that terminated the recipient.
func (e *Engine) deliver(ctx context.Context, identifier, text string) (*gateway.Outcome, int, error) {
	var lastErr error

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		start := time.Now()
		outcome, err := e.gw.Send(ctx, identifier, text)
		metrics.DeliveryAttemptDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			return outcome, attempt, nil
		}

		lastErr = err
		if gateway.IsPermanent(err) {
			return nil, attempt, err
		}
		if !e.retry.ShouldRetry(attempt) {
			return nil, attempt, lastErr
		}

		metrics.GatewayRetriesTotal.Inc()
		e.log.Warn().Err(err).
			Str("recipient", identifier).
			Int("attempt", attempt).
			Int("max_attempts", e.retry.MaxAttempts).
			Msg("gateway send failed, retrying")

		select {
		case <-ctx.Done():
			return nil, attempt, lastErr
		case <-time.After(e.retry.NextBackoff(attempt)):
		}
	}

	return nil, e.retry.MaxAttempts, lastErr
}

// renderMessage interpolates the recipient's display name into the fixed
// greeting template. The body itself is never altered.
func renderMessage(name, body string) string {
	return fmt.Sprintf("Hi %s, %s", name, body)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"broadcast-service/internal/domain"
	"broadcast-service/internal/repository"
	"broadcast-service/pkg/gateway"
	"broadcast-service/pkg/phone"
	"broadcast-service/pkg/xerrors"
)

const (
	defaultFanoutWorkers = 10
	defaultSendTimeout   = 30 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = time.Second
)

// BroadcastUsecase fans one logical message out to the whole roster.
type BroadcastUsecase struct {
	directory repository.DirectoryRepository
	ledger    repository.LedgerRepository
	transport gateway.Transport
	logger    *zap.Logger

	// Pool size is fixed regardless of roster size so a big roster
	// cannot overwhelm the provider.
	fanoutWorkers int
	sendTimeout   time.Duration
	maxAttempts   int
	retryBackoff  time.Duration
}

func NewBroadcastUsecase(
	directory repository.DirectoryRepository,
	ledger repository.LedgerRepository,
	transport gateway.Transport,
	logger *zap.Logger,
	fanoutWorkers int,
) *BroadcastUsecase {
	if fanoutWorkers <= 0 {
		fanoutWorkers = defaultFanoutWorkers
	}
	return &BroadcastUsecase{
		directory:     directory,
		ledger:        ledger,
		transport:     transport,
		logger:        logger,
		fanoutWorkers: fanoutWorkers,
		sendTimeout:   defaultSendTimeout,
		maxAttempts:   defaultMaxAttempts,
		retryBackoff:  defaultRetryBackoff,
	}
}

// Broadcast persists a new member message and delivers it to every other
// active member. Individual recipient failures never abort the batch;
// only an unknown sender, an empty roster, or an unavailable store do.
func (uc *BroadcastUsecase) Broadcast(ctx context.Context, senderAddress, body string, attachmentURLs []string) (*domain.BroadcastOutcome, error) {
	sender, err := uc.directory.GetMember(ctx, senderAddress)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrUnregisteredSender
		}
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}

	recipients, err := uc.directory.ActiveRecipients(ctx, sender.Address)
	if err != nil {
		return nil, fmt.Errorf("recipient listing failed: %w", err)
	}
	if len(recipients) == 0 {
		return nil, xerrors.ErrNoRecipients
	}

	b := &domain.Broadcast{
		ID:            uuid.New().String(),
		SenderAddress: sender.Address,
		SenderName:    sender.Name,
		Body:          body,
	}
	saved, err := uc.ledger.SaveBroadcast(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%w: saving broadcast: %v", xerrors.ErrLedgerUnavailable, err)
	}

	formatted := formatOutbound(sender.Name, body, attachmentURLs, "")
	outcome := uc.fanOut(ctx, saved.ID, formatted, recipients)

	uc.logger.Info("broadcast delivered",
		zap.String("broadcast_id", saved.ID),
		zap.String("sender", phone.Mask(sender.Address)),
		zap.Int("sent", outcome.SentCount),
		zap.Int("failed", outcome.FailedCount),
		zap.Duration("elapsed", outcome.Elapsed))

	return outcome, nil
}

// BroadcastSummary re-sends a broadcast's updated reaction summary to the
// full roster, original sender included.
func (uc *BroadcastUsecase) BroadcastSummary(ctx context.Context, b *domain.Broadcast, summary string) (*domain.BroadcastOutcome, error) {
	recipients, err := uc.directory.ActiveRecipients(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("recipient listing failed: %w", err)
	}
	if len(recipients) == 0 {
		return nil, xerrors.ErrNoRecipients
	}

	formatted := formatOutbound(b.SenderName, snippet(b.Body, 80), nil, summary)
	outcome := uc.fanOut(ctx, b.ID, formatted, recipients)

	uc.logger.Info("reaction summary re-sent",
		zap.String("broadcast_id", b.ID),
		zap.Int("sent", outcome.SentCount),
		zap.Int("failed", outcome.FailedCount))

	return outcome, nil
}

// BroadcastDigest sends a synthetic digest message to the whole roster.
// Digests are not persisted as broadcasts; only their delivery log is.
func (uc *BroadcastUsecase) BroadcastDigest(ctx context.Context, body string) (*domain.BroadcastOutcome, error) {
	recipients, err := uc.directory.ActiveRecipients(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("recipient listing failed: %w", err)
	}
	if len(recipients) == 0 {
		return nil, xerrors.ErrNoRecipients
	}

	messageID := "digest-" + uuid.New().String()
	outcome := uc.fanOut(ctx, messageID, body, recipients)

	uc.logger.Info("digest delivered",
		zap.String("message_id", messageID),
		zap.Int("sent", outcome.SentCount),
		zap.Int("failed", outcome.FailedCount))

	return outcome, nil
}

func (uc *BroadcastUsecase) fanOut(ctx context.Context, messageID, body string, recipients []*domain.Member) *domain.BroadcastOutcome {
	start := time.Now()
	attempts := make([]*domain.DeliveryAttempt, len(recipients))

	g := new(errgroup.Group)
	g.SetLimit(uc.fanoutWorkers)
	for i, rcpt := range recipients {
		i, rcpt := i, rcpt
		g.Go(func() error {
			attempts[i] = uc.deliver(ctx, messageID, rcpt.Address, body)
			return nil
		})
	}
	_ = g.Wait()

	outcome := &domain.BroadcastOutcome{MessageID: messageID, Elapsed: time.Since(start)}
	for _, a := range attempts {
		if a.Status == domain.DeliveryDelivered {
			outcome.SentCount++
		} else {
			outcome.FailedCount++
		}
	}

	// Every attempt is recorded before the batch is considered done.
	if err := uc.ledger.SaveDeliveryAttempts(ctx, attempts); err != nil {
		uc.logger.Error("failed to persist delivery log",
			zap.String("message_id", messageID),
			zap.Error(err))
	}

	return outcome
}

// deliver runs one recipient's retry loop. The timeout budget covers all
// attempts, so a hung provider call cannot stall the batch past it.
func (uc *BroadcastUsecase) deliver(ctx context.Context, messageID, recipient, body string) *domain.DeliveryAttempt {
	att := &domain.DeliveryAttempt{
		MessageID:        messageID,
		RecipientAddress: recipient,
		Status:           domain.DeliveryPending,
	}
	start := time.Now()

	sctx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		att.RetryCount = attempt - 1

		res, err := uc.transport.Send(sctx, recipient, body)
		if err == nil {
			att.Status = domain.DeliveryDelivered
			if res != nil {
				att.ProviderID = res.ProviderID
			}
			att.DurationMs = time.Since(start).Milliseconds()
			return att
		}
		lastErr = err

		if attempt == uc.maxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * uc.retryBackoff): // linear backoff
		case <-sctx.Done():
		}
		if sctx.Err() != nil {
			lastErr = fmt.Errorf("send timed out: %w", sctx.Err())
			break
		}
	}

	att.Status = domain.DeliveryFailed
	att.Error = lastErr.Error()
	att.DurationMs = time.Since(start).Milliseconds()

	uc.logger.Warn("delivery failed",
		zap.String("message_id", messageID),
		zap.String("recipient", phone.Mask(recipient)),
		zap.Int("retries", att.RetryCount),
		zap.Error(lastErr))

	return att
}

func formatOutbound(senderName, body string, attachments []string, summary string) string {
	var sb strings.Builder
	sb.WriteString(senderName)
	sb.WriteString(": ")
	sb.WriteString(body)
	for _, u := range attachments {
		sb.WriteString("\n")
		sb.WriteString(u)
	}
	if summary != "" {
		sb.WriteString("\n")
		sb.WriteString(summary)
	}
	return sb.String()
}

func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"broadcast-service/internal/domain"
	"broadcast-service/internal/reaction"
	"broadcast-service/internal/repository"
	"broadcast-service/pkg/blobstore"
	"broadcast-service/pkg/phone"
	"broadcast-service/pkg/xerrors"
)

const tryAgainReply = "Something went wrong. Please try again shortly."

// SilenceResetter restarts the digest scheduler's quiet-period timer.
// Implemented by the digest worker; an interface here keeps the wiring
// one-directional.
type SilenceResetter interface {
	ResetSilenceTimer()
}

// InboundUsecase turns one inbound text into whatever it is: a command,
// a reaction, or a new broadcast. The returned reply is empty for
// ordinary member broadcasts; silence is the contract there.
type InboundUsecase struct {
	directory   repository.DirectoryRepository
	ledger      repository.LedgerRepository
	resolver    *reaction.Resolver
	aggregator  *reaction.Aggregator
	broadcaster *BroadcastUsecase
	blobs       *blobstore.Store
	scheduler   SilenceResetter
	logger      *zap.Logger
}

func NewInboundUsecase(
	directory repository.DirectoryRepository,
	ledger repository.LedgerRepository,
	resolver *reaction.Resolver,
	aggregator *reaction.Aggregator,
	broadcaster *BroadcastUsecase,
	blobs *blobstore.Store,
	scheduler SilenceResetter,
	logger *zap.Logger,
) *InboundUsecase {
	return &InboundUsecase{
		directory:   directory,
		ledger:      ledger,
		resolver:    resolver,
		aggregator:  aggregator,
		broadcaster: broadcaster,
		blobs:       blobs,
		scheduler:   scheduler,
		logger:      logger,
	}
}

func (uc *InboundUsecase) HandleInbound(ctx context.Context, fromAddress, body string, mediaURLs []string) (string, error) {
	addr := phone.Normalize(fromAddress)
	body = strings.TrimSpace(body)
	if body == "" && len(mediaURLs) == 0 {
		return "", nil
	}

	member, err := uc.directory.GetMember(ctx, addr)
	if errors.Is(err, xerrors.ErrNotFound) {
		uc.logger.Info("rejected unregistered sender", zap.String("from", phone.Mask(addr)))
		return "You're not on this broadcast list yet. Ask an admin to add you.", nil
	}
	if err != nil {
		return tryAgainReply, fmt.Errorf("directory lookup failed: %w", err)
	}

	if reply, handled := uc.handleCommand(ctx, member, body); handled {
		return reply, nil
	}

	if det := reaction.Detect(body); det != nil && len(mediaURLs) == 0 {
		return uc.handleReaction(ctx, member, det)
	}

	return uc.handleBroadcast(ctx, member, body, mediaURLs)
}

// handleCommand recognizes the small command set. Anything it does not
// recognize falls through to the broadcast path, including command-ish
// text like a non-admin sending "STATS".
func (uc *InboundUsecase) handleCommand(ctx context.Context, m *domain.Member, body string) (string, bool) {
	upper := strings.ToUpper(body)

	switch upper {
	case "HELP", "H", "?":
		return helpText(m.IsAdmin), true
	}

	if !m.IsAdmin {
		return "", false
	}

	switch {
	case upper == "STATS":
		return uc.statsText(ctx), true
	case upper == "RECENT":
		return uc.recentText(ctx), true
	case strings.HasPrefix(upper, "ADD "):
		return uc.addMember(ctx, body), true
	}

	return "", false
}

func (uc *InboundUsecase) handleReaction(ctx context.Context, m *domain.Member, det *reaction.Detection) (string, error) {
	target, err := uc.resolver.Resolve(ctx, det.TargetFragment, m.Address)
	if err != nil {
		return tryAgainReply, fmt.Errorf("reaction target resolution failed: %w", err)
	}
	if target == nil {
		// Nothing in the lookback window to attach to.
		uc.logger.Info("reaction had no target",
			zap.String("from", phone.Mask(m.Address)),
			zap.String("pattern", det.RawPattern))
		if m.IsAdmin {
			return "Nothing recent to react to.", nil
		}
		return "", nil
	}

	res, err := uc.aggregator.Apply(ctx, target, m.Address, m.Name, det.Emoji)
	if err != nil {
		return tryAgainReply, fmt.Errorf("reaction apply failed: %w", err)
	}

	if res.SendUpdate {
		// Dispatch is a separate step from aggregation; its failure is
		// absorbed here, the reaction itself is already recorded.
		if _, err := uc.broadcaster.BroadcastSummary(ctx, target, res.Summary); err != nil {
			uc.logger.Error("summary re-broadcast failed",
				zap.String("broadcast_id", target.ID),
				zap.Error(err))
		}
	}

	if m.IsAdmin {
		return fmt.Sprintf("Reaction %s: %s", res.Action, det.Emoji), nil
	}
	return "", nil
}

func (uc *InboundUsecase) handleBroadcast(ctx context.Context, m *domain.Member, body string, mediaURLs []string) (string, error) {
	var urls []string
	degraded := false
	for _, mediaURL := range mediaURLs {
		if uc.blobs == nil {
			degraded = true
			continue
		}
		u, err := uc.blobs.Mirror(ctx, mediaURL)
		if err != nil {
			uc.logger.Warn("attachment processing failed",
				zap.String("from", phone.Mask(m.Address)),
				zap.Error(err))
			degraded = true
			continue
		}
		urls = append(urls, u)
	}
	if degraded {
		body = strings.TrimSpace(body + "\n[attachment unavailable]")
	}

	outcome, err := uc.broadcaster.Broadcast(ctx, m.Address, body, urls)
	switch {
	case errors.Is(err, xerrors.ErrNoRecipients):
		if m.IsAdmin {
			return "No active recipients to send to.", nil
		}
		return "", nil
	case err != nil:
		return tryAgainReply, err
	}

	if uc.scheduler != nil {
		uc.scheduler.ResetSilenceTimer()
	}

	if m.IsAdmin {
		if outcome.FailedCount > 0 {
			return fmt.Sprintf("Broadcast sent to %d members, %d failed.", outcome.SentCount, outcome.FailedCount), nil
		}
		return fmt.Sprintf("Broadcast sent to %d members.", outcome.SentCount), nil
	}
	return "", nil
}

// Stats backs both the STATS command and the ops endpoint.
func (uc *InboundUsecase) Stats(ctx context.Context) (*domain.RosterStats, error) {
	members, err := uc.directory.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	week, err := uc.ledger.CountBroadcastsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := uc.ledger.CountReactionsSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	return &domain.RosterStats{
		ActiveMembers:  members,
		MessagesWeek:   week,
		ReactionsToday: today,
	}, nil
}

func (uc *InboundUsecase) statsText(ctx context.Context) string {
	stats, err := uc.Stats(ctx)
	if err != nil {
		uc.logger.Error("stats lookup failed", zap.Error(err))
		return tryAgainReply
	}
	return fmt.Sprintf("Roster: %d active members\nMessages this week: %d\nReactions today: %d",
		stats.ActiveMembers, stats.MessagesWeek, stats.ReactionsToday)
}

func (uc *InboundUsecase) recentText(ctx context.Context) string {
	broadcasts, err := uc.ledger.ListRecent(ctx, 5)
	if err != nil {
		uc.logger.Error("recent listing failed", zap.Error(err))
		return tryAgainReply
	}
	if len(broadcasts) == 0 {
		return "No recent broadcasts."
	}

	var sb strings.Builder
	sb.WriteString("Recent broadcasts:\n")
	for _, b := range broadcasts {
		sb.WriteString(fmt.Sprintf("%s: %s (%s)\n",
			b.SenderName, snippet(b.Body, 50), b.CreatedAt.Format("Jan 2 15:04")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// addMember handles "ADD <phone> <name...>".
func (uc *InboundUsecase) addMember(ctx context.Context, body string) string {
	fields := strings.Fields(body)
	if len(fields) < 3 {
		return "Format: ADD <phone> <name>"
	}

	number := phone.Normalize(fields[1])
	name := strings.Join(fields[2:], " ")

	if err := uc.directory.UpsertMember(ctx, &domain.Member{Address: number, Name: name}); err != nil {
		uc.logger.Error("member add failed",
			zap.String("address", phone.Mask(number)),
			zap.Error(err))
		return tryAgainReply
	}
	return fmt.Sprintf("Added %s (%s).", name, number)
}

func helpText(isAdmin bool) string {
	var sb strings.Builder
	sb.WriteString("BROADCAST LIST\n")
	sb.WriteString("Text anything to reach every member.\n")
	sb.WriteString("React from your messages app (Loved, Liked...) or send an emoji to react to the latest message.\n")
	sb.WriteString("Commands: HELP")
	if isAdmin {
		sb.WriteString(", STATS, RECENT, ADD <phone> <name>")
	}
	return sb.String()
}

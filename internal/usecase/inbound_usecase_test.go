package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"broadcast-service/internal/domain"
	"broadcast-service/internal/reaction"
)

type fakeScheduler struct{ resets int }

func (s *fakeScheduler) ResetSilenceTimer() { s.resets++ }

type inboundFixture struct {
	dir       *fakeDirectory
	ledger    *fakeLedger
	transport *fakeTransport
	scheduler *fakeScheduler
	uc        *InboundUsecase
}

func newInboundFixture(members ...*domain.Member) *inboundFixture {
	dir := newFakeDirectory(members...)
	ledger := newFakeLedger()
	transport := newFakeTransport()
	scheduler := &fakeScheduler{}
	logger := zap.NewNop()

	broadcaster := newTestBroadcaster(dir, ledger, transport)
	resolver := reaction.NewResolver(ledger, logger)
	aggregator := reaction.NewAggregator(ledger, logger)

	return &inboundFixture{
		dir:       dir,
		ledger:    ledger,
		transport: transport,
		scheduler: scheduler,
		uc: NewInboundUsecase(
			dir, ledger, resolver, aggregator, broadcaster, nil, scheduler, logger,
		),
	}
}

func TestHandleInboundUnregisteredSender(t *testing.T) {
	f := newInboundFixture(roster(2, false)...)

	reply, err := f.uc.HandleInbound(context.Background(), "+19990000000", "hello all", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "not on this broadcast list")
	assert.Empty(t, f.ledger.broadcasts)
}

func TestHandleInboundMemberBroadcastIsSilent(t *testing.T) {
	members := roster(3, false)
	f := newInboundFixture(members...)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "Potluck is on Saturday", nil)
	require.NoError(t, err)
	assert.Empty(t, reply)

	require.Len(t, f.ledger.broadcasts, 1)
	assert.Equal(t, 1, f.scheduler.resets)
}

func TestHandleInboundAdminBroadcastConfirmation(t *testing.T) {
	members := roster(3, true)
	f := newInboundFixture(members...)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "Service moved to 10am", nil)
	require.NoError(t, err)
	assert.Equal(t, "Broadcast sent to 2 members.", reply)
}

func TestHandleInboundHelp(t *testing.T) {
	members := roster(2, true)
	f := newInboundFixture(members...)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "help", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "STATS")

	reply, err = f.uc.HandleInbound(context.Background(), members[1].Address, "?", nil)
	require.NoError(t, err)
	assert.NotContains(t, reply, "STATS")

	// Help never broadcasts.
	assert.Empty(t, f.ledger.broadcasts)
}

func TestHandleInboundAdminCommandFromMemberBroadcasts(t *testing.T) {
	members := roster(3, false)
	f := newInboundFixture(members...)

	// Non-admins have no STATS command; the text goes out like any other.
	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "STATS", nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.Len(t, f.ledger.broadcasts, 1)
	assert.Equal(t, "STATS", f.ledger.broadcasts[0].Body)
}

func TestHandleInboundAdminStats(t *testing.T) {
	members := roster(3, true)
	f := newInboundFixture(members...)

	_, err := f.uc.HandleInbound(context.Background(), members[1].Address, "Good morning!", nil)
	require.NoError(t, err)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "STATS", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "3 active members")
	assert.Contains(t, reply, "Messages this week: 1")

	// The command itself never becomes a broadcast.
	assert.Len(t, f.ledger.broadcasts, 1)
}

func TestHandleInboundAdminAdd(t *testing.T) {
	members := roster(2, true)
	f := newInboundFixture(members...)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "ADD 5551234567 New Person", nil)
	require.NoError(t, err)
	assert.Equal(t, "Added New Person (+15551234567).", reply)

	m, err := f.dir.GetMember(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "New Person", m.Name)
}

func TestHandleInboundReactionRoundtrip(t *testing.T) {
	members := roster(3, false)
	f := newInboundFixture(members...)
	ctx := context.Background()

	_, err := f.uc.HandleInbound(ctx, members[0].Address, "Good morning!", nil)
	require.NoError(t, err)
	require.Len(t, f.ledger.broadcasts, 1)
	target := f.ledger.broadcasts[0]

	reply, err := f.uc.HandleInbound(ctx, members[1].Address, `Loved "Good morning!"`, nil)
	require.NoError(t, err)
	assert.Empty(t, reply)

	// The reaction attached instead of becoming a broadcast.
	require.Len(t, f.ledger.broadcasts, 1)
	r, err := f.ledger.GetReaction(ctx, target.ID, members[1].Address)
	require.NoError(t, err)
	assert.Equal(t, "❤️", r.Emoji)
	assert.True(t, r.IsActive)

	// First reaction pushes a summary update to the full roster.
	assert.Equal(t, "1 reaction: ❤️", f.ledger.broadcasts[0].ReactionSummary)
	lastBody := f.transport.bodies[members[2].Address]
	require.NotEmpty(t, lastBody)
	assert.Contains(t, lastBody[len(lastBody)-1], "1 reaction: ❤️")

	// Reactions do not reset the silence timer.
	assert.Equal(t, 1, f.scheduler.resets)
}

func TestHandleInboundBareEmojiHitsLatestBroadcast(t *testing.T) {
	members := roster(3, false)
	f := newInboundFixture(members...)
	ctx := context.Background()

	_, err := f.uc.HandleInbound(ctx, members[0].Address, "Old news", nil)
	require.NoError(t, err)
	f.ledger.broadcasts[0].CreatedAt = time.Now().Add(-time.Hour)

	_, err = f.uc.HandleInbound(ctx, members[0].Address, "Potluck is on Saturday", nil)
	require.NoError(t, err)

	_, err = f.uc.HandleInbound(ctx, members[1].Address, "🙏", nil)
	require.NoError(t, err)

	require.Len(t, f.ledger.broadcasts, 2)
	latest := f.ledger.broadcasts[1]
	r, err := f.ledger.GetReaction(ctx, latest.ID, members[1].Address)
	require.NoError(t, err)
	assert.Equal(t, "🙏", r.Emoji)
}

func TestHandleInboundReactionWithNothingToTarget(t *testing.T) {
	members := roster(2, true)
	f := newInboundFixture(members...)

	reply, err := f.uc.HandleInbound(context.Background(), members[0].Address, "❤️", nil)
	require.NoError(t, err)
	assert.Equal(t, "Nothing recent to react to.", reply)
	assert.Empty(t, f.ledger.reactions)
}

package compliance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"restricted-promotion/cooldown"
	"restricted-promotion/invite"
	"restricted-promotion/models"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	invites map[string]models.ResolvedInvite
	calls   atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, code string) (models.ResolvedInvite, error) {
	f.calls.Add(1)
	inv, ok := f.invites[code]
	if !ok {
		return models.ResolvedInvite{}, errors.New("unknown invite")
	}
	return inv, nil
}

// spyStore wraps a MemStore and counts writes, optionally failing.
type spyStore struct {
	*cooldown.MemStore
	upserts atomic.Int32
	getErr  error
	putErr  error
}

func (s *spyStore) Get(ctx context.Context, serverID string) (*models.CooldownRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemStore.Get(ctx, serverID)
}

func (s *spyStore) Upsert(ctx context.Context, serverID, authorID string, msg models.MessageRef, at time.Time) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.upserts.Add(1)
	return s.MemStore.Upsert(ctx, serverID, authorID, msg, at)
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func testConfig() *models.AppConfig {
	return &models.AppConfig{
		RequiredMessageLength: 20,
		IgnoreRoles:           map[string]bool{"mod": true},
		AlertSec:              10 * time.Second,
		BanPeriod: models.BanPeriod{
			Day:             day,
			DayPerUser:      3 * day,
			MinPerUserStart: 60 * time.Second,
		},
	}
}

func newTestEvaluator(cfg *models.AppConfig) (*Evaluator, *spyStore, *fakeResolver) {
	res := &fakeResolver{invites: map[string]models.ResolvedInvite{
		"perma123": {Code: "perma123", TargetServer: "S", Policy: models.PolicyPermanent},
		"perma456": {Code: "perma456", TargetServer: "S", Policy: models.PolicyPermanent},
		"other":    {Code: "other", TargetServer: "T", Policy: models.PolicyPermanent},
		"temp":     {Code: "temp", TargetServer: "S", Policy: models.PolicyExpires},
	}}
	store := &spyStore{MemStore: cooldown.NewMemStore()}
	return NewEvaluator(cfg, res, store), store, res
}

const longDesc = "A friendly community for board game fans. "

var messageSeq atomic.Int32

// ad builds a fresh message; every call gets its own message ID.
func ad(author, content string, roles ...string) models.AdvertisementMessage {
	id := fmt.Sprintf("m-%s-%d", author, messageSeq.Add(1))
	return NewAdvertisement(id, author, "G", "C", content, roles, t0)
}

// edited keeps the identity of msg but replaces its content.
func edited(msg models.AdvertisementMessage, content string) models.AdvertisementMessage {
	return NewAdvertisement(msg.MessageID, msg.AuthorID, msg.GuildID, msg.ChannelID, content, msg.Roles, msg.SentAt)
}

func TestScenarioDescriptionTooShort(t *testing.T) {
	e, store, _ := newTestEvaluator(testConfig())

	v := e.Evaluate(context.Background(), ad("U", "Join! https://discord.gg/perma123"), t0)
	assert.False(t, v.Admitted)
	assert.Equal(t, DescriptionTooShort, v.Reason)
	assert.Equal(t, int32(0), store.upserts.Load())
}

func TestScenarioCooldownTimeline(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, store, _ := newTestEvaluator(testConfig())

	// first advertisement of S by U
	v := e.Evaluate(ctx, ad("U", longDesc+"https://discord.gg/perma123"), t0)
	require.True(t, v.Admitted)
	assert.Equal(Accepted, v.Reason)
	assert.Equal("S", v.Invite.TargetServer)

	rec, err := store.Get(ctx, "S")
	require.NoError(t, err)
	assert.True(rec.LastAdvertisedAt.Equal(t0))
	at, ok := rec.AuthorLastAdvertisedAt("U")
	assert.True(ok)
	assert.True(at.Equal(t0))

	// different author just before the server window closes
	v = e.Evaluate(ctx, ad("V", longDesc+"https://discord.gg/perma123"), t0.Add(day-time.Second))
	assert.False(v.Admitted)
	assert.Equal(ServerOnCooldown, v.Reason)
	assert.Equal(time.Second, v.Remaining)

	// same author inside the grace window
	first := rec.Messages["U"]
	v = e.Evaluate(ctx, ad("U", longDesc+"https://discord.gg/perma123"), t0.Add(30*time.Second))
	assert.True(v.Admitted)
	assert.Equal(GraceRepost, v.Reason)
	assert.Equal([]models.MessageRef{first}, v.Superseded)
	rec, _ = store.Get(ctx, "S")
	assert.True(rec.LastAdvertisedAt.Equal(t0.Add(30 * time.Second)))
	at, _ = rec.AuthorLastAdvertisedAt("U")
	assert.True(at.Equal(t0.Add(30 * time.Second)))
}

func TestScenarioAuthorCooldownOutlivesServerCooldown(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEvaluator(testConfig())

	require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

	v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0.Add(2*day))
	assert.False(t, v.Admitted)
	assert.Equal(t, AuthorOnCooldown, v.Reason)
	assert.Equal(t, day, v.Remaining)
	assert.True(t, v.LastAdvertisedAt.Equal(t0))

	// a different author is free once the server window is over
	v = e.Evaluate(ctx, ad("V", longDesc+"discord.gg/perma123"), t0.Add(2*day))
	assert.True(t, v.Admitted)
}

func TestRoleBypassNeverTouchesStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, store, res := newTestEvaluator(testConfig())

	msgs := []models.AdvertisementMessage{
		ad("M", "no link at all", "mod"),
		ad("M", "x https://discord.gg/temp", "member", "mod"),
		ad("M", longDesc+"https://discord.gg/perma123", "mod"),
	}
	for i := 0; i < 3; i++ {
		for _, m := range msgs {
			v := e.Evaluate(ctx, m, t0.Add(time.Duration(i)*time.Second))
			assert.True(v.Admitted)
			assert.Equal(RoleBypass, v.Reason)
		}
	}
	assert.Equal(int32(0), store.upserts.Load())
	assert.Equal(int32(0), res.calls.Load())
	rec, err := store.Get(ctx, "S")
	require.NoError(t, err)
	assert.Nil(rec)
}

func TestNoLinkFound(t *testing.T) {
	e, _, res := newTestEvaluator(testConfig())
	v := e.Evaluate(context.Background(), ad("U", longDesc+"https://example.com/invite/abc"), t0)
	assert.Equal(t, NoLinkFound, v.Reason)
	assert.False(t, v.Admitted)
	assert.Equal(t, int32(0), res.calls.Load())
}

func TestBadLinksRejectedRegardlessOfCooldown(t *testing.T) {
	ctx := context.Background()

	for _, fresh := range []bool{true, false} {
		e, _, _ := newTestEvaluator(testConfig())
		if !fresh {
			require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)
		}

		v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/temp"), t0.Add(10*time.Second))
		assert.False(t, v.Admitted)
		assert.Equal(t, LinkExpires, v.Reason)

		v = e.Evaluate(ctx, ad("U", longDesc+"discord.gg/unknown"), t0.Add(10*time.Second))
		assert.False(t, v.Admitted)
		assert.Equal(t, ResolutionFailed, v.Reason)
		assert.Error(t, v.Err)
	}
}

func TestGuildlessInviteIsResolutionFailure(t *testing.T) {
	cfg := testConfig()
	r := invite.NewResolverWithFetch(func(ctx context.Context, code string) (*discordgo.Invite, error) {
		return &discordgo.Invite{}, nil
	}, time.Second)
	e := NewEvaluator(cfg, r, cooldown.NewMemStore())

	v := e.Evaluate(context.Background(), ad("U", longDesc+"discord.gg/dm"), t0)
	assert.Equal(t, ResolutionFailed, v.Reason)
	assert.ErrorIs(t, v.Err, invite.ErrNotGuildInvite)
}

func TestCooldownMonotonicity(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEvaluator(testConfig())
	require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

	for _, offset := range []time.Duration{time.Minute, time.Hour, 12 * time.Hour, day - time.Nanosecond} {
		v := e.Evaluate(ctx, ad("V", longDesc+"discord.gg/perma456"), t0.Add(offset))
		assert.Equal(t, ServerOnCooldown, v.Reason, offset)
		assert.Equal(t, day-offset, v.Remaining, offset)
	}

	// other servers are unaffected
	v := e.Evaluate(ctx, ad("V", longDesc+"discord.gg/other"), t0.Add(time.Minute))
	assert.True(t, v.Admitted)
}

func TestGraceDoesNotExtendToOtherAuthors(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEvaluator(testConfig())
	require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

	eps := 10 * time.Second
	assert.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma456"), t0.Add(eps)).Admitted)

	v := e.Evaluate(ctx, ad("V", longDesc+"discord.gg/perma123"), t0.Add(eps))
	assert.Equal(t, ServerOnCooldown, v.Reason)
}

func TestGraceWindowBoundary(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEvaluator(testConfig())
	require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

	v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0.Add(60*time.Second))
	assert.Equal(t, ServerOnCooldown, v.Reason)
	assert.Equal(t, day-60*time.Second, v.Remaining)
}

func TestStoreFailuresNeverAdmit(t *testing.T) {
	ctx := context.Background()

	e, store, _ := newTestEvaluator(testConfig())
	store.getErr = errors.New("disk on fire")
	v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0)
	assert.False(t, v.Admitted)
	assert.Equal(t, StoreUnavailable, v.Reason)
	assert.Error(t, v.Err)

	e, store, _ = newTestEvaluator(testConfig())
	store.putErr = errors.New("read only")
	v = e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0)
	assert.False(t, v.Admitted)
	assert.Equal(t, StoreUnavailable, v.Reason)
}

func TestConcurrentAdvertisementsOfSameServer(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newTestEvaluator(testConfig())

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := "author-" + string(rune('A'+i))
			if e.Evaluate(ctx, ad(author, longDesc+"discord.gg/perma123"), t0).Admitted {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(1), store.upserts.Load())
	assert.Equal(t, 0, e.locks.size())
}

func TestDescriptionLength(t *testing.T) {
	assert.Equal(t, 5, DescriptionLength("  Join!  "))
	assert.Equal(t, 3, DescriptionLength("日本語"))
	assert.Equal(t, 2, DescriptionLength("e\u0301!"))
}

func TestDecideWithoutRecord(t *testing.T) {
	v := Decide(nil, "U", "m1", t0, testConfig().BanPeriod)
	assert.True(t, v.Admitted)
	assert.Equal(t, Accepted, v.Reason)
}

func TestDecideOwnMessageIsUnchangedEdit(t *testing.T) {
	bp := testConfig().BanPeriod
	rec := &models.CooldownRecord{
		ServerID:         "S",
		LastAdvertisedAt: t0,
		Authors:          map[string]time.Time{"U": t0},
		Messages:         map[string]models.MessageRef{"U": {ChannelID: "C", MessageID: "m1"}},
	}

	v := Decide(rec, "U", "m1", t0.Add(2*time.Hour), bp)
	assert.True(t, v.Admitted)
	assert.Equal(t, UnchangedEdit, v.Reason)

	v = Decide(rec, "U", "m2", t0.Add(2*time.Hour), bp)
	assert.Equal(t, ServerOnCooldown, v.Reason)

	// another author can never claim U's message
	v = Decide(rec, "V", "m1", t0.Add(2*time.Hour), bp)
	assert.Equal(t, ServerOnCooldown, v.Reason)

	// an empty message ID never matches
	v = Decide(rec, "U", "", t0.Add(2*time.Hour), bp)
	assert.Equal(t, ServerOnCooldown, v.Reason)
}

func TestEditOfAdmittedMessage(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newTestEvaluator(testConfig())
	orig := ad("U", longDesc+"discord.gg/perma123")
	require.True(t, e.Evaluate(ctx, orig, t0).Admitted)
	require.Equal(t, int32(1), store.upserts.Load())

	later := t0.Add(2 * time.Hour)

	// same server, new wording: admitted without charging the cooldown again
	v := e.Evaluate(ctx, edited(orig, "Updated: "+longDesc+"discord.gg/perma456"), later)
	assert.True(t, v.Admitted)
	assert.Equal(t, UnchangedEdit, v.Reason)
	assert.Equal(t, int32(1), store.upserts.Load())
	rec, err := store.Get(ctx, "S")
	require.NoError(t, err)
	assert.True(t, rec.LastAdvertisedAt.Equal(t0))

	// content checks still apply
	v = e.Evaluate(ctx, edited(orig, "hi discord.gg/perma123"), later)
	assert.Equal(t, DescriptionTooShort, v.Reason)
	v = e.Evaluate(ctx, edited(orig, longDesc+"discord.gg/temp"), later)
	assert.Equal(t, LinkExpires, v.Reason)

	// switching to another server is a new advertisement
	v = e.Evaluate(ctx, edited(orig, longDesc+"discord.gg/other"), later)
	assert.True(t, v.Admitted)
	assert.Equal(t, Accepted, v.Reason)
	assert.Equal(t, int32(2), store.upserts.Load())

	// a fresh message of another author pointing at S is still rejected
	v = e.Evaluate(ctx, ad("V", longDesc+"discord.gg/perma123"), later)
	assert.Equal(t, ServerOnCooldown, v.Reason)
}

func TestEditSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	e, store, res := newTestEvaluator(testConfig())

	orig := ad("U", longDesc+"discord.gg/perma123")
	require.True(t, e.Evaluate(ctx, orig, t0).Admitted)

	// a new evaluator over the same store recognizes the message
	restarted := NewEvaluator(testConfig(), res, store)
	v := restarted.Evaluate(ctx, edited(orig, "Now with more text. "+longDesc+"discord.gg/perma123"), t0.Add(2*time.Hour))
	assert.True(t, v.Admitted)
	assert.Equal(t, UnchangedEdit, v.Reason)
	assert.Equal(t, int32(1), store.upserts.Load())
}

func TestEveryInviteIsChecked(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent and expiring", func(t *testing.T) {
		e, store, _ := newTestEvaluator(testConfig())
		v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123 discord.gg/temp"), t0)
		assert.False(t, v.Admitted)
		assert.Equal(t, LinkExpires, v.Reason)
		assert.Equal(t, "temp", v.Invite.Code)
		assert.Equal(t, int32(0), store.upserts.Load())
	})

	t.Run("unresolvable after a good one", func(t *testing.T) {
		e, store, _ := newTestEvaluator(testConfig())
		v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/other discord.gg/nope"), t0)
		assert.Equal(t, ResolutionFailed, v.Reason)
		assert.Equal(t, "nope", v.Invite.Code)
		assert.Equal(t, int32(0), store.upserts.Load())
	})

	t.Run("fresh server and cooling server", func(t *testing.T) {
		e, store, _ := newTestEvaluator(testConfig())
		require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

		v := e.Evaluate(ctx, ad("V", longDesc+"discord.gg/other discord.gg/perma123"), t0.Add(time.Hour))
		assert.False(t, v.Admitted)
		assert.Equal(t, ServerOnCooldown, v.Reason)
		assert.Equal(t, "S", v.Invite.TargetServer)
		assert.Equal(t, day-time.Hour, v.Remaining)

		// nothing was recorded for the fresh server
		rec, err := store.Get(ctx, "T")
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.Equal(t, int32(1), store.upserts.Load())
	})

	t.Run("cooling server hidden behind other links", func(t *testing.T) {
		e, store, _ := newTestEvaluator(testConfig())
		require.True(t, e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123"), t0).Admitted)

		v := e.Evaluate(ctx, ad("V", longDesc+"discord.gg/other discord.gg/perma123 discord.gg/temp"), t0.Add(time.Hour))
		assert.False(t, v.Admitted)
		assert.Equal(t, LinkExpires, v.Reason)

		v = e.Evaluate(ctx, ad("V", longDesc+"discord.gg/other discord.gg/perma123"), t0.Add(time.Hour))
		assert.False(t, v.Admitted)
		assert.Equal(t, ServerOnCooldown, v.Reason)
		assert.Equal(t, int32(1), store.upserts.Load())
	})

	t.Run("all servers free", func(t *testing.T) {
		e, store, _ := newTestEvaluator(testConfig())
		v := e.Evaluate(ctx, ad("U", longDesc+"discord.gg/perma123 discord.gg/other discord.gg/perma456"), t0)
		require.True(t, v.Admitted)
		assert.Equal(t, Accepted, v.Reason)
		assert.Equal(t, []string{"S", "T"}, v.Servers)
		assert.Equal(t, "perma123", v.Invite.Code)
		assert.Equal(t, int32(2), store.upserts.Load())

		for _, server := range []string{"S", "T"} {
			rec, err := store.Get(ctx, server)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.True(t, rec.LastAdvertisedAt.Equal(t0))
		}
		assert.Equal(t, 0, e.locks.size())
	})
}

func TestConcurrentOverlappingServerSets(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEvaluator(testConfig())

	contents := []string{
		longDesc + "discord.gg/perma123 discord.gg/other",
		longDesc + "discord.gg/other discord.gg/perma456",
	}
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := fmt.Sprintf("author-%d", i)
			if e.Evaluate(ctx, ad(author, contents[i%2]), t0).Admitted {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 0, e.locks.size())
}

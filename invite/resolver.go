package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restricted-promotion/metrics"
	"restricted-promotion/models"

	"github.com/bwmarrin/discordgo"
)

// ErrNotGuildInvite is returned for invites that do not point at a server
// (group DM invites, for example).
var ErrNotGuildInvite = errors.New("invite does not target a guild")

// Resolver looks up the metadata of an invite code. Any error means the
// invite could not be resolved and must be treated as a rejection.
type Resolver interface {
	Resolve(ctx context.Context, code string) (models.ResolvedInvite, error)
}

// FetchFunc fetches raw invite metadata from Discord.
type FetchFunc func(ctx context.Context, code string) (*discordgo.Invite, error)

// DiscordResolver resolves invites through the Discord REST API.
type DiscordResolver struct {
	fetch   FetchFunc
	timeout time.Duration
}

// NewDiscordResolver creates a resolver backed by the given session.
func NewDiscordResolver(s *discordgo.Session, timeout time.Duration) *DiscordResolver {
	return NewResolverWithFetch(func(ctx context.Context, code string) (*discordgo.Invite, error) {
		return s.InviteComplex(code, "", false, true, discordgo.WithContext(ctx))
	}, timeout)
}

// NewResolverWithFetch creates a resolver around an arbitrary fetch function.
func NewResolverWithFetch(fetch FetchFunc, timeout time.Duration) *DiscordResolver {
	return &DiscordResolver{fetch: fetch, timeout: timeout}
}

// Resolve implements Resolver.
func (r *DiscordResolver) Resolve(ctx context.Context, code string) (models.ResolvedInvite, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	inv, err := r.fetch(ctx, code)
	metrics.ObserveResolve(time.Since(start), err)
	if err != nil {
		return models.ResolvedInvite{}, fmt.Errorf("failed to fetch invite %s: %w", code, err)
	}
	return fromDiscordInvite(code, inv)
}

func fromDiscordInvite(code string, inv *discordgo.Invite) (models.ResolvedInvite, error) {
	if inv == nil || inv.Guild == nil || inv.Guild.ID == "" {
		return models.ResolvedInvite{}, fmt.Errorf("invite %s: %w", code, ErrNotGuildInvite)
	}
	res := models.ResolvedInvite{
		Code:         code,
		TargetServer: inv.Guild.ID,
		Policy:       models.PolicyPermanent,
	}
	if inv.ExpiresAt != nil && !inv.ExpiresAt.IsZero() {
		exp := *inv.ExpiresAt
		res.Policy = models.PolicyExpires
		res.ExpiresAt = &exp
	}
	return res, nil
}

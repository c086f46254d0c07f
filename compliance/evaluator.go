package compliance

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"restricted-promotion/cooldown"
	"restricted-promotion/invite"
	"restricted-promotion/metrics"
	"restricted-promotion/models"

	"github.com/rivo/uniseg"
)

// Evaluator decides whether an advertisement is currently allowed and
// records accepted advertisements in the cooldown store.
type Evaluator struct {
	cfg      *models.AppConfig
	resolver invite.Resolver
	store    cooldown.Store
	locks    *keyedMutex
}

// NewEvaluator creates an evaluator. cfg must not be modified afterwards.
func NewEvaluator(cfg *models.AppConfig, resolver invite.Resolver, store cooldown.Store) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		locks:    newKeyedMutex(),
	}
}

// NewAdvertisement builds the evaluation input from a raw message.
func NewAdvertisement(messageID, authorID, guildID, channelID, content string, roles []string, sentAt time.Time) models.AdvertisementMessage {
	f := invite.Find(content)
	return models.AdvertisementMessage{
		MessageID:   messageID,
		AuthorID:    authorID,
		GuildID:     guildID,
		ChannelID:   channelID,
		Content:     content,
		InviteCodes: f.Codes(),
		Description: f.Description,
		Roles:       roles,
		SentAt:      sentAt,
	}
}

// evaluation carries the state shared by the checks of one Evaluate call.
type evaluation struct {
	msg     models.AdvertisementMessage
	now     time.Time
	invites []models.ResolvedInvite
}

// servers returns the distinct target servers in sorted order, which is
// also the order their locks are taken in.
func (ev *evaluation) servers() []string {
	seen := make(map[string]bool, len(ev.invites))
	var servers []string
	for _, inv := range ev.invites {
		if !seen[inv.TargetServer] {
			seen[inv.TargetServer] = true
			servers = append(servers, inv.TargetServer)
		}
	}
	sort.Strings(servers)
	return servers
}

func (ev *evaluation) inviteFor(server string) *models.ResolvedInvite {
	for i := range ev.invites {
		if ev.invites[i].TargetServer == server {
			return &ev.invites[i]
		}
	}
	return nil
}

// check returns a final verdict and true, or false to continue with the next check.
type check func(ctx context.Context, ev *evaluation) (Verdict, bool)

// Evaluate runs the checks in order; the first failing check decides the
// verdict. On admission the store is updated before Evaluate returns.
func (e *Evaluator) Evaluate(ctx context.Context, msg models.AdvertisementMessage, now time.Time) Verdict {
	v := e.evaluate(ctx, msg, now)
	metrics.ObserveVerdict(v.Admitted, string(v.Reason))
	if v.Reason == StoreUnavailable {
		metrics.IncStoreError()
	}
	return v
}

func (e *Evaluator) evaluate(ctx context.Context, msg models.AdvertisementMessage, now time.Time) Verdict {
	ev := &evaluation{msg: msg, now: now}
	checks := []check{
		e.checkRoleBypass,
		e.checkInvites,
		e.checkDescription,
		e.checkCooldowns,
	}
	for _, c := range checks {
		if v, done := c(ctx, ev); done {
			if v.Invite == nil && len(ev.invites) > 0 {
				v.Invite = &ev.invites[0]
			}
			return v
		}
	}
	// unreachable: checkCooldowns always decides
	return reject(StoreUnavailable)
}

func (e *Evaluator) checkRoleBypass(ctx context.Context, ev *evaluation) (Verdict, bool) {
	for _, role := range ev.msg.Roles {
		if e.cfg.IgnoreRoles[role] {
			return admit(RoleBypass), true
		}
	}
	return Verdict{}, false
}

// checkInvites resolves every invite of the message. A single unresolvable
// or expiring invite rejects the whole message.
func (e *Evaluator) checkInvites(ctx context.Context, ev *evaluation) (Verdict, bool) {
	if len(ev.msg.InviteCodes) == 0 {
		return reject(NoLinkFound), true
	}
	for _, code := range ev.msg.InviteCodes {
		res, err := e.resolver.Resolve(ctx, code)
		if err != nil {
			if !errors.Is(err, invite.ErrNotGuildInvite) {
				log.Printf("Compliance: resolving invite %s failed: %v", code, err)
			}
			v := reject(ResolutionFailed)
			v.Invite = &models.ResolvedInvite{Code: code}
			v.Err = err
			return v, true
		}
		if res.Policy != models.PolicyPermanent {
			v := reject(LinkExpires)
			v.Invite = &res
			return v, true
		}
		ev.invites = append(ev.invites, res)
	}
	return Verdict{}, false
}

func (e *Evaluator) checkDescription(ctx context.Context, ev *evaluation) (Verdict, bool) {
	if DescriptionLength(ev.msg.Description) < e.cfg.RequiredMessageLength {
		return reject(DescriptionTooShort), true
	}
	return Verdict{}, false
}

// checkCooldowns holds the locks of every target server, taken in sorted
// order, so that two advertisements sharing a server cannot both observe a
// free slot. Either every server admits and all of them are recorded, or
// nothing is written.
func (e *Evaluator) checkCooldowns(ctx context.Context, ev *evaluation) (Verdict, bool) {
	servers := ev.servers()
	for _, server := range servers {
		unlock := e.locks.Lock(server)
		defer unlock()
	}

	decided := make([]Verdict, len(servers))
	for i, server := range servers {
		rec, err := e.store.Get(ctx, server)
		if err != nil {
			log.Printf("Compliance: loading cooldown of server %s failed: %v", server, err)
			v := reject(StoreUnavailable)
			v.Err = err
			return v, true
		}
		v := Decide(rec, ev.msg.AuthorID, ev.msg.MessageID, ev.now, e.cfg.BanPeriod)
		if !v.Admitted {
			v.Invite = ev.inviteFor(server)
			return v, true
		}
		decided[i] = v
	}

	result := admit(UnchangedEdit)
	result.Servers = servers
	for i, server := range servers {
		v := decided[i]
		if v.Reason == UnchangedEdit {
			continue
		}
		if err := e.store.Upsert(ctx, server, ev.msg.AuthorID, ev.msg.Ref(), ev.now); err != nil {
			log.Printf("Compliance: recording advertisement of server %s failed: %v", server, err)
			v := reject(StoreUnavailable)
			v.Err = err
			return v, true
		}
		result.Superseded = appendRef(result.Superseded, v.Superseded...)
		switch {
		case v.Reason == Accepted:
			result.Reason = Accepted
		case result.Reason == UnchangedEdit:
			result.Reason = v.Reason
		}
	}
	return result, true
}

func appendRef(refs []models.MessageRef, add ...models.MessageRef) []models.MessageRef {
	for _, ref := range add {
		dup := false
		for _, have := range refs {
			if have == ref {
				dup = true
				break
			}
		}
		if !dup {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Decide applies the cooldown rules to a server's record for one message.
//
// A record that already points at messageID is the message's own earlier
// admission (it was edited) and is admitted as UnchangedEdit. The author
// grace window is checked next: an author reposting within it is admitted
// even though the server-level window, opened by that same author, is still
// running, and the earlier message is reported as superseded.
func Decide(rec *models.CooldownRecord, authorID, messageID string, now time.Time, bp models.BanPeriod) Verdict {
	if rec == nil {
		return admit(Accepted)
	}

	prev, hasMessage := rec.AuthorMessage(authorID)
	if hasMessage && messageID != "" && prev.MessageID == messageID {
		return admit(UnchangedEdit)
	}

	authorLast, hasAuthor := rec.AuthorLastAdvertisedAt(authorID)
	if hasAuthor && now.Sub(authorLast) < bp.MinPerUserStart {
		v := admit(GraceRepost)
		if hasMessage {
			v.Superseded = []models.MessageRef{prev}
		}
		return v
	}

	if elapsed := now.Sub(rec.LastAdvertisedAt); elapsed < bp.Day {
		v := reject(ServerOnCooldown)
		v.Remaining = bp.Day - elapsed
		v.LastAdvertisedAt = rec.LastAdvertisedAt
		return v
	}

	if hasAuthor {
		if elapsed := now.Sub(authorLast); elapsed < bp.DayPerUser {
			v := reject(AuthorOnCooldown)
			v.Remaining = bp.DayPerUser - elapsed
			v.LastAdvertisedAt = authorLast
			return v
		}
	}
	return admit(Accepted)
}

// DescriptionLength counts user-perceived characters of the trimmed description.
func DescriptionLength(desc string) int {
	n := 0
	gr := uniseg.NewGraphemes(strings.TrimSpace(desc))
	for gr.Next() {
		n++
	}
	return n
}

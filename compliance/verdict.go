package compliance

import (
	"time"

	"restricted-promotion/models"
)

// Reason tags the outcome of an evaluation.
type Reason string

const (
	// admitted
	Accepted    Reason = "accepted"
	RoleBypass  Reason = "role_bypass"
	GraceRepost Reason = "grace_repost"

	// a message whose own earlier admission is already on record (an edit)
	UnchangedEdit Reason = "unchanged_edit"

	// rejected
	NoLinkFound         Reason = "no_link_found"
	LinkExpires         Reason = "link_expires"
	ResolutionFailed    Reason = "resolution_failed"
	DescriptionTooShort Reason = "description_too_short"
	ServerOnCooldown    Reason = "server_on_cooldown"
	AuthorOnCooldown    Reason = "author_on_cooldown"
	StoreUnavailable    Reason = "store_unavailable"
)

// Verdict is the structured outcome of one evaluation. Rejections are
// ordinary values; Err only carries the infrastructure failure behind
// ResolutionFailed or StoreUnavailable.
type Verdict struct {
	Admitted bool
	Reason   Reason

	// Remaining is set for ServerOnCooldown and AuthorOnCooldown.
	Remaining time.Duration
	// Invite is the first resolved invite, or the invite that failed a check.
	Invite *models.ResolvedInvite
	// Servers are the distinct target servers of an admitted advertisement.
	Servers []string
	// Superseded lists the author's earlier messages replaced by a GraceRepost.
	Superseded []models.MessageRef
	// LastAdvertisedAt is the timestamp that caused a cooldown rejection.
	LastAdvertisedAt time.Time

	Err error
}

func admit(reason Reason) Verdict {
	return Verdict{Admitted: true, Reason: reason}
}

func reject(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// IsCooldown reports whether the verdict is a cooldown rejection.
func (v Verdict) IsCooldown() bool {
	return v.Reason == ServerOnCooldown || v.Reason == AuthorOnCooldown
}

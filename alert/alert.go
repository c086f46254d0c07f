package alert

import (
	"time"

	"restricted-promotion/compliance"
)

// Kind selects how a verdict is shown to the author.
type Kind int

const (
	None      Kind = iota // admitted, nothing to show
	Plain                 // rejection without a countdown
	Countdown             // rejection that expires while the warning is still visible
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Countdown:
		return "countdown"
	default:
		return "none"
	}
}

// Alert is the feedback plan for one verdict.
type Alert struct {
	Kind        Kind
	Remaining   time.Duration
	DeleteAfter time.Duration // how long the warning (and the rejected message) stay visible
}

// Plan decides the feedback for a verdict. It depends on nothing but its
// arguments: rejections whose remaining cooldown fits into alertSec get a
// countdown, every other rejection a plain warning.
func Plan(v compliance.Verdict, alertSec time.Duration) Alert {
	if v.Admitted {
		return Alert{Kind: None}
	}
	a := Alert{Kind: Plain, Remaining: v.Remaining, DeleteAfter: alertSec}
	if v.IsCooldown() && v.Remaining > 0 && v.Remaining <= alertSec {
		a.Kind = Countdown
	}
	return a
}

// AvailableAt returns when the author may post again, relative to now.
func (a Alert) AvailableAt(now time.Time) time.Time {
	return now.Add(a.Remaining)
}

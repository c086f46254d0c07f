package handlers

import (
	"fmt"
	"time"

	"restricted-promotion/alert"
	"restricted-promotion/compliance"
	"restricted-promotion/models"
	"restricted-promotion/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

// warningEmbed builds the warning sent in reply to a rejected advertisement.
func warningEmbed(cfg *models.AppConfig, v compliance.Verdict, a alert.Alert, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Advertisement removed", cfg.AlertEmoji),
		Description: reasonText(cfg, v, a, now),
		Color:       utils.ColorWarn,
		Timestamp:   now.Format(time.RFC3339),
	}
	if a.DeleteAfter > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("This warning disappears in %d seconds.", int(a.DeleteAfter.Seconds())),
		}
	}
	return embed
}

func reasonText(cfg *models.AppConfig, v compliance.Verdict, a alert.Alert, now time.Time) string {
	switch v.Reason {
	case compliance.NoLinkFound:
		return "No Discord invite link was found in your message."
	case compliance.ResolutionFailed:
		return "The invite link could not be resolved. Make sure it is valid and points to a server."
	case compliance.LinkExpires:
		if v.Invite != nil && v.Invite.ExpiresAt != nil {
			return fmt.Sprintf("The invite link expires %s. Please post a permanent invite.", humanize.RelTime(*v.Invite.ExpiresAt, now, "ago", "from now"))
		}
		return "The invite link expires. Please post a permanent invite."
	case compliance.DescriptionTooShort:
		return fmt.Sprintf("Please describe your server in at least %d characters besides the link.", cfg.RequiredMessageLength)
	case compliance.ServerOnCooldown:
		return fmt.Sprintf("This server was already advertised %s. It can be advertised again %s.",
			humanize.RelTime(v.LastAdvertisedAt, now, "ago", "from now"), availableText(a, now))
	case compliance.AuthorOnCooldown:
		return fmt.Sprintf("You advertised this server %s. You can advertise it again %s.",
			humanize.RelTime(v.LastAdvertisedAt, now, "ago", "from now"), availableText(a, now))
	case compliance.StoreUnavailable:
		return "The advertisement history is unavailable right now. Please try again later."
	default:
		return string(v.Reason)
	}
}

// availableText renders a countdown as a Discord relative timestamp and
// everything else as humanized text.
func availableText(a alert.Alert, now time.Time) string {
	at := a.AvailableAt(now)
	if a.Kind == alert.Countdown {
		return fmt.Sprintf("<t:%d:R>", at.Unix())
	}
	return humanize.RelTime(at, now, "ago", "from now")
}

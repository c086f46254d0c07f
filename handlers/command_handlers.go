package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"restricted-promotion/bot"
	"restricted-promotion/compliance"
	"restricted-promotion/invite"
	"restricted-promotion/models"
	"restricted-promotion/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

func HandlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pong!",
		},
	})
}

// HandlePromoStatus handles the logic for the /promo_status command.
func HandlePromoStatus(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	optionMap := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		optionMap[opt.Name] = opt
	}

	var code, userID string
	if opt, ok := optionMap["invite"]; ok {
		code = inviteCodeFromInput(opt.StringValue())
	}
	if opt, ok := optionMap["user"]; ok {
		userID = opt.UserValue(nil).ID
	}

	// resolving may take a while, defer the response first
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})

	respond := func(embed *discordgo.MessageEmbed) {
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Embeds: &[]*discordgo.MessageEmbed{embed},
		}); err != nil {
			log.Printf("Failed to edit promo_status response: %v", err)
		}
	}

	ctx := context.Background()
	res, err := b.Resolver.Resolve(ctx, code)
	if err != nil {
		respond(&discordgo.MessageEmbed{
			Title:       "Invite not resolvable",
			Description: fmt.Sprintf("`%s`: %v", code, err),
			Color:       utils.ColorError,
		})
		return
	}

	rec, err := b.Store.Get(ctx, res.TargetServer)
	if err != nil {
		respond(&discordgo.MessageEmbed{
			Title:       "Cooldown history unavailable",
			Description: err.Error(),
			Color:       utils.ColorError,
		})
		return
	}

	respond(statusEmbed(b.Config, res, rec, userID, time.Now()))
}

// inviteCodeFromInput accepts either a full invite link or a bare code.
func inviteCodeFromInput(input string) string {
	if code := invite.Find(input).FirstCode(); code != "" {
		return code
	}
	return strings.TrimSpace(input)
}

// statusEmbed summarizes the cooldown state of a server and, optionally, one author.
func statusEmbed(cfg *models.AppConfig, res models.ResolvedInvite, rec *models.CooldownRecord, userID string, now time.Time) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Server", Value: res.TargetServer, Inline: true},
		{Name: "Invite", Value: fmt.Sprintf("`%s` (%s)", res.Code, res.Policy), Inline: true},
	}

	if rec == nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Last advertised", Value: "never"})
	} else {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Last advertised",
			Value: humanize.RelTime(rec.LastAdvertisedAt, now, "ago", "from now"),
		})
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Authors on record",
			Value: humanize.Comma(int64(len(rec.Authors))),
		})
	}

	if userID != "" {
		if last, ok := rec.AuthorLastAdvertisedAt(userID); ok {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:  "Author last advertised",
				Value: fmt.Sprintf("<@%s> %s", userID, humanize.RelTime(last, now, "ago", "from now")),
			})
		}
	}

	v := compliance.Decide(rec, userID, "", now, cfg.BanPeriod)
	status := "✅ Can be advertised now"
	if !v.Admitted {
		status = fmt.Sprintf("⏳ %s, available %s", v.Reason, humanize.RelTime(now.Add(v.Remaining), now, "ago", "from now"))
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Status", Value: status})

	return &discordgo.MessageEmbed{
		Title:     "Promotion status",
		Color:     utils.ColorInfo,
		Fields:    fields,
		Timestamp: now.Format(time.RFC3339),
	}
}

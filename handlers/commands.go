package handlers

import (
	"restricted-promotion/bot"
	"restricted-promotion/command"

	"github.com/bwmarrin/discordgo"
)

// CommandDispatcher is the central handler for all application command interactions.
// It performs permission checks and then dispatches the interaction to the appropriate handler.
func CommandDispatcher(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	commandName := i.ApplicationCommandData().Name
	requiredLevel, ok := command.Permissions[commandName]

	if ok {
		if !b.Auth.CheckPermission(i, requiredLevel) {
			s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "🚫 你没有权限执行此命令",
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			})
			return
		}
	}

	switch commandName {
	case "ping":
		HandlePing(s, i)
	case "promo_status":
		HandlePromoStatus(b, s, i)
	default:
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "🚫内部错误：Unknown command.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	}
}

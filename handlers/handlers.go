package handlers

import (
	"log"

	"restricted-promotion/bot"

	"github.com/bwmarrin/discordgo"
)

// Register all handlers to the bot.
func Register(b *bot.Bot) {
	promotion := NewPromotionHandler(b)

	// Register event handlers
	b.Session.AddHandler(InteractionCreate(b))
	b.Session.AddHandler(promotion.OnMessageCreate)
	b.Session.AddHandler(promotion.OnMessageUpdate)

	// Add a ready handler to log when the bot is connected.
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
		b.SetServing(true)
	})
	b.Session.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
		b.SetServing(false)
	})
}

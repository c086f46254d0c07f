package command

import "github.com/bwmarrin/discordgo"

// PingCommand defines the structure for the /ping command.
type PingCommand struct{}

// Definition returns the application command definition.
func (c *PingCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Responds with Pong!",
	}
}

// PromoStatusCommand defines the structure for the /promo_status command.
type PromoStatusCommand struct{}

// Definition returns the application command definition.
func (c *PromoStatusCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "promo_status",
		Description: "Show the promotion cooldown of an invite's server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "invite",
				Description: "Invite link or code",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:        "user",
				Description: "Also show this author's cooldown",
				Type:        discordgo.ApplicationCommandOptionUser,
				Required:    false,
			},
		},
	}
}

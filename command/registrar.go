package command

import (
	"restricted-promotion/bot"

	"github.com/bwmarrin/discordgo"
)

// Permissions maps each command to the level required to run it.
var Permissions = map[string]string{
	"ping":         "guest",
	"promo_status": "admin",
}

// AllCommands holds all the command instances.
var AllCommands = []bot.Command{
	&PingCommand{},
	&PromoStatusCommand{},
}

// GetCommandDefinitions returns a slice of all command definitions.
func GetCommandDefinitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, len(AllCommands))
	for i, cmd := range AllCommands {
		defs[i] = cmd.Definition()
	}
	return defs
}

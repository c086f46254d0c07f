package main

import (
	"restricted-promotion/bot"
	"restricted-promotion/command"
	"restricted-promotion/handlers"
)

func main() {
	bot.Run(handlers.Register, command.AllCommands)
}

package bot

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"restricted-promotion/compliance"
	"restricted-promotion/config"
	"restricted-promotion/cooldown"
	"restricted-promotion/grpc"
	"restricted-promotion/invite"
	"restricted-promotion/metrics"
	"restricted-promotion/models"
	"restricted-promotion/utils"

	"github.com/bwmarrin/discordgo"
)

// Command defines the interface for a bot command.
type Command interface {
	Definition() *discordgo.ApplicationCommand
}

// Bot encapsulates the bot's state.
type Bot struct {
	Session   *discordgo.Session
	Commands  map[string]Command
	Config    *models.AppConfig
	Store     cooldown.Store
	Resolver  invite.Resolver
	Evaluator *compliance.Evaluator
	Auth      *utils.Auth

	metrics *metrics.Server
	health  *grpc.HealthServer
}

// NewBot creates and initializes a new Bot instance.
func NewBot() (*Bot, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsMessageContent

	store, err := cooldown.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening cooldown store: %w", err)
	}

	resolver := invite.NewCachingResolver(
		invite.NewDiscordResolver(dg, cfg.ResolveTimeout),
		cfg.InviteCache.Size,
		cfg.InviteCache.TTL(),
	)

	return &Bot{
		Session:   dg,
		Commands:  make(map[string]Command),
		Config:    cfg,
		Store:     store,
		Resolver:  resolver,
		Evaluator: compliance.NewEvaluator(cfg, resolver, store),
		Auth:      utils.NewAuth(cfg.Commands),
	}, nil
}

// RegisterCommands registers the provided commands.
func (b *Bot) RegisterCommands(commands []Command) {
	for _, cmd := range commands {
		b.Commands[cmd.Definition().Name] = cmd
	}
}

// Start opens the bot's session and registers handlers.
func (b *Bot) Start(registerHandlers func(*Bot)) error {
	registerHandlers(b)

	if b.Config.Metrics.Listen != "" {
		b.metrics = metrics.StartServer(b.Config.Metrics.Listen)
	}
	if b.Config.GRPC.Listen != "" {
		hs, err := grpc.StartHealthServer(b.Config.GRPC.Listen)
		if err != nil {
			return fmt.Errorf("error starting health server: %w", err)
		}
		b.health = hs
	}

	err := b.Session.Open()
	if err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	utils.InitLogger(b.Session, b.Config.AdminChannelID)

	// Register slash commands
	for _, cmd := range b.Commands {
		_, err := b.Session.ApplicationCommandCreate(b.Session.State.User.ID, "", cmd.Definition())
		if err != nil {
			log.Printf("Cannot create '%v' command: %v", cmd.Definition().Name, err)
		}
	}

	startScheduler(b)

	fmt.Println("Bot is now running. Press CTRL-C to exit.")
	return nil
}

// SetServing updates the gRPC health status.
func (b *Bot) SetServing(serving bool) {
	b.health.SetServing(serving)
}

// Stop gracefully closes the bot's session.
func (b *Bot) Stop() {
	stopScheduler()
	b.health.SetServing(false)
	if b.Session != nil {
		b.Session.Close()
	}
	b.health.Stop()
	b.metrics.Stop()
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			log.Printf("Error closing cooldown store: %v", err)
		}
	}
	fmt.Println("Bot stopped gracefully.")
}

// Run is the main entry point for the bot application.
func Run(registerHandlers func(*Bot), commands []Command) {
	bot, err := NewBot()
	if err != nil {
		log.Fatalf("Error initializing bot: %v", err)
	}

	bot.RegisterCommands(commands)

	if err := bot.Start(registerHandlers); err != nil {
		log.Fatalf("Error starting bot: %v", err)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	bot.Stop()
}

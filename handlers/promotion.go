package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"restricted-promotion/alert"
	"restricted-promotion/bot"
	"restricted-promotion/compliance"
	"restricted-promotion/models"
	"restricted-promotion/utils"

	"github.com/bwmarrin/discordgo"
)

// discordAPI is the part of *discordgo.Session the promotion handler uses.
type discordAPI interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// PromotionHandler moderates the configured promotion channels.
type PromotionHandler struct {
	cfg       *models.AppConfig
	evaluator *compliance.Evaluator

	now       func() time.Time
	afterFunc func(time.Duration, func())
}

func NewPromotionHandler(b *bot.Bot) *PromotionHandler {
	return newPromotionHandler(b.Config, b.Evaluator)
}

func newPromotionHandler(cfg *models.AppConfig, ev *compliance.Evaluator) *PromotionHandler {
	return &PromotionHandler{
		cfg:       cfg,
		evaluator: ev,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// OnMessageCreate moderates a new message.
func (h *PromotionHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	h.moderate(s, m.Message)
}

// OnMessageUpdate re-evaluates an edited message.
func (h *PromotionHandler) OnMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	h.handleUpdate(s, m)
}

func (h *PromotionHandler) handleUpdate(api discordAPI, m *discordgo.MessageUpdate) {
	// embed unfurls arrive as updates without an edit timestamp
	if m.EditedTimestamp == nil {
		return
	}
	if !h.cfg.IsPromotionChannel(m.ChannelID) {
		return
	}

	msg, err := api.ChannelMessage(m.ChannelID, m.ID)
	if err != nil {
		log.Printf("Failed to fetch edited message %s: %v", m.ID, err)
		return
	}
	if msg.GuildID == "" {
		msg.GuildID = m.GuildID
	}
	h.moderate(api, msg)
}

func (h *PromotionHandler) moderate(api discordAPI, msg *discordgo.Message) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if !h.cfg.IsPromotionChannel(msg.ChannelID) {
		return
	}

	ad := compliance.NewAdvertisement(msg.ID, msg.Author.ID, msg.GuildID, msg.ChannelID, msg.Content, memberRoles(api, msg), msg.Timestamp)

	now := h.now()
	v := h.evaluator.Evaluate(context.Background(), ad, now)
	if v.Admitted {
		h.admitted(api, msg, v)
		return
	}
	h.rejected(api, msg, v, now)
}

func (h *PromotionHandler) admitted(api discordAPI, msg *discordgo.Message, v compliance.Verdict) {
	log.Printf("Promotion: message %s by %s admitted (%s)", msg.ID, msg.Author.ID, v.Reason)

	for _, ref := range v.Superseded {
		if ref.MessageID == msg.ID {
			continue
		}
		if err := api.ChannelMessageDelete(ref.ChannelID, ref.MessageID); err != nil {
			log.Printf("Failed to delete superseded message %s: %v", ref.MessageID, err)
		}
	}

	switch v.Reason {
	case compliance.Accepted:
		utils.Info("Promotion", "Admit", fmt.Sprintf("<@%s> advertised %s in <#%s>", msg.Author.ID, strings.Join(v.Servers, ", "), msg.ChannelID))
	case compliance.GraceRepost:
		utils.Info("Promotion", "Repost", fmt.Sprintf("<@%s> reposted %s in <#%s>, %d earlier message(s) removed", msg.Author.ID, strings.Join(v.Servers, ", "), msg.ChannelID, len(v.Superseded)))
	}
}

func (h *PromotionHandler) rejected(api discordAPI, msg *discordgo.Message, v compliance.Verdict, now time.Time) {
	log.Printf("Promotion: message %s by %s rejected (%s)", msg.ID, msg.Author.ID, v.Reason)
	if v.Reason == compliance.StoreUnavailable {
		utils.Error("Promotion", "Evaluate", fmt.Sprintf("cooldown store unavailable: %v", v.Err))
	} else {
		utils.Warn("Promotion", "Reject", fmt.Sprintf("<@%s> in <#%s>: %s", msg.Author.ID, msg.ChannelID, v.Reason))
	}

	a := alert.Plan(v, h.cfg.AlertSec)
	reply, err := api.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{warningEmbed(h.cfg, v, a, now)},
		Reference: msg.Reference(),
	})
	if err != nil {
		log.Printf("Failed to send warning for message %s: %v", msg.ID, err)
		reply = nil
	}

	h.afterFunc(a.DeleteAfter, func() {
		if reply != nil {
			if err := api.ChannelMessageDelete(reply.ChannelID, reply.ID); err != nil {
				log.Printf("Failed to delete warning %s: %v", reply.ID, err)
			}
		}
		if err := api.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
			log.Printf("Failed to delete rejected message %s: %v", msg.ID, err)
		}
	})
}

// memberRoles returns the author's roles from the message, the state cache
// or the API, in that order.
func memberRoles(api discordAPI, msg *discordgo.Message) []string {
	if msg.Member != nil {
		return msg.Member.Roles
	}
	if msg.GuildID == "" {
		return nil
	}
	if s, ok := api.(*discordgo.Session); ok && s.State != nil {
		if member, err := s.State.Member(msg.GuildID, msg.Author.ID); err == nil {
			return member.Roles
		}
	}
	member, err := api.GuildMember(msg.GuildID, msg.Author.ID)
	if err != nil {
		log.Printf("Failed to fetch member %s: %v", msg.Author.ID, err)
		return nil
	}
	return member.Roles
}

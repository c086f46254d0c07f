package utils

import (
	"slices"

	"restricted-promotion/models"

	"github.com/bwmarrin/discordgo"
)

// Auth provides methods for authorization checks.
type Auth struct {
	config models.CommandsConfig
}

// NewAuth creates a new Auth instance from the commands configuration.
func NewAuth(config models.CommandsConfig) *Auth {
	return &Auth{config: config}
}

// IsDeveloper checks if a user is a developer.
func (a *Auth) IsDeveloper(userID string) bool {
	return slices.Contains(a.config.Auth.Developers, userID)
}

// IsAdmin checks if a member has an admin role.
func (a *Auth) IsAdmin(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	for _, adminRoleID := range a.config.Auth.AdminsRoles {
		if slices.Contains(member.Roles, adminRoleID) {
			return true
		}
	}
	return false
}

// IsGuest checks if a user is a guest.
// "0" in the guest list opens guest commands to everyone.
func (a *Auth) IsGuest(userID string) bool {
	for _, guestID := range a.config.Auth.Guest {
		if guestID == "0" || userID == guestID {
			return true
		}
	}
	return false
}

// CheckPermission checks if the interacting user has the required permission level.
func (a *Auth) CheckPermission(i *discordgo.InteractionCreate, requiredLevel string) bool {
	var user *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		user = i.Member.User
	case i.User != nil:
		user = i.User
	default:
		return false
	}

	switch requiredLevel {
	case "developer":
		return a.IsDeveloper(user.ID)
	case "admin":
		return a.IsDeveloper(user.ID) || a.IsAdmin(i.Member)
	case "guest":
		return true // Guests are allowed
	default:
		return false
	}
}

package models

import "time"

// AdvertisementMessage is the input of a single evaluation. It is never persisted.
type AdvertisementMessage struct {
	MessageID   string
	AuthorID    string
	GuildID     string
	ChannelID   string
	Content     string
	InviteCodes []string // distinct invite codes in order of appearance
	Description string   // content with every invite link removed
	Roles       []string
	SentAt      time.Time
}

// Ref returns the reference of the message itself.
func (m AdvertisementMessage) Ref() MessageRef {
	return MessageRef{ChannelID: m.ChannelID, MessageID: m.MessageID}
}

// MessageRef points at a posted advertisement.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// ExpirationPolicy tells whether an invite link stops working at some point.
type ExpirationPolicy string

const (
	PolicyPermanent ExpirationPolicy = "permanent"
	PolicyExpires   ExpirationPolicy = "expires"
)

// ResolvedInvite is the metadata of an invite code as reported by Discord.
type ResolvedInvite struct {
	Code         string
	TargetServer string
	Policy       ExpirationPolicy
	ExpiresAt    *time.Time
}

// CooldownRecord is the accepted-advertisement history of one target server.
type CooldownRecord struct {
	ServerID         string
	LastAdvertisedAt time.Time
	Authors          map[string]time.Time  // author ID -> last accepted advertisement
	Messages         map[string]MessageRef // author ID -> message of that advertisement
}

// AuthorLastAdvertisedAt returns the author's own last accepted advertisement.
func (r *CooldownRecord) AuthorLastAdvertisedAt(authorID string) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	t, ok := r.Authors[authorID]
	return t, ok
}

// AuthorMessage returns the message of the author's last accepted advertisement.
func (r *CooldownRecord) AuthorMessage(authorID string) (MessageRef, bool) {
	if r == nil {
		return MessageRef{}, false
	}
	ref, ok := r.Messages[authorID]
	return ref, ok && ref.MessageID != ""
}

// Clone returns a deep copy so stores never hand out their internal maps.
func (r *CooldownRecord) Clone() *CooldownRecord {
	if r == nil {
		return nil
	}
	c := &CooldownRecord{
		ServerID:         r.ServerID,
		LastAdvertisedAt: r.LastAdvertisedAt,
		Authors:          make(map[string]time.Time, len(r.Authors)),
		Messages:         make(map[string]MessageRef, len(r.Messages)),
	}
	for k, v := range r.Authors {
		c.Authors[k] = v
	}
	for k, v := range r.Messages {
		c.Messages[k] = v
	}
	return c
}

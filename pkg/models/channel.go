package models

import (
	"fmt"
	"strings"
)

// Channel is the discriminant shared by every interaction shape.
type Channel string

const (
	ChannelReview   Channel = "review"
	ChannelQuestion Channel = "question"
	ChannelChat     Channel = "chat"
)

var Channels = []Channel{ChannelReview, ChannelQuestion, ChannelChat}

func (c Channel) Valid() bool {
	switch c {
	case ChannelReview, ChannelQuestion, ChannelChat:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// SyncKey scopes cursors, runs and locks to one seller/marketplace/channel triple.
type SyncKey struct {
	SellerID    int64   `db:"seller_id" json:"seller_id"`
	Marketplace string  `db:"marketplace" json:"marketplace"`
	Channel     Channel `db:"channel" json:"channel"`
}

func (k SyncKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.SellerID, k.Marketplace, k.Channel)
}

// IdentityKey uniquely names one interaction.
type IdentityKey struct {
	SellerID    int64
	Marketplace string
	Channel     Channel
	ExternalID  string
}

func (k IdentityKey) SyncKey() SyncKey {
	return SyncKey{SellerID: k.SellerID, Marketplace: k.Marketplace, Channel: k.Channel}
}

func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%s", k.SyncKey(), k.ExternalID)
}

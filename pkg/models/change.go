package models

type ChangeType string

const (
	ChangeCreated   ChangeType = "interaction.created"
	ChangeUpdated   ChangeType = "interaction.updated"
	ChangeEscalated ChangeType = "interaction.escalated"
)

// InteractionChange is published to downstream consumers after a commit.
type InteractionChange struct {
	Type        ChangeType   `json:"type"`
	Interaction *Interaction `json:"interaction"`
}

// Package status derives interaction workflow status from message history.
// Every function here is pure so the same code serves ingestion and repair.
package status

import (
	"sort"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// Result is the derived workflow state of one interaction.
type Result struct {
	Status        models.InteractionStatus
	NeedsResponse bool
	// UnreadCount is the number of customer messages after the last seller or system message.
	UnreadCount int
}

// Derive computes chat status from messages in thread order.
func Derive(messages []models.Message) Result {
	if len(messages) == 0 {
		return result(models.StatusWaiting, 0)
	}

	last := messages[len(messages)-1]
	sellerSideBefore := false
	unread := 0
	for _, m := range messages {
		switch m.Author {
		case models.AuthorSeller, models.AuthorSystem:
			sellerSideBefore = true
			unread = 0
		case models.AuthorCustomer:
			unread++
		}
	}

	switch last.Author {
	case models.AuthorCustomer:
		// sellerSideBefore cannot come from the last message itself here.
		if sellerSideBefore {
			return result(models.StatusClientReplied, unread)
		}
		return result(models.StatusWaiting, unread)
	case models.AuthorSeller:
		return result(models.StatusResponded, 0)
	case models.AuthorSystem:
		return result(models.StatusAutoResponse, 0)
	default:
		return result(models.StatusWaiting, unread)
	}
}

// DeriveAnswered maps review and question channels, which carry only an answered flag.
func DeriveAnswered(answered bool) Result {
	if answered {
		return result(models.StatusResponded, 0)
	}
	return result(models.StatusWaiting, 0)
}

func result(s models.InteractionStatus, unread int) Result {
	return Result{Status: s, NeedsResponse: s.NeedsResponse(), UnreadCount: unread}
}

// MessagesFromEvents extracts message events in thread order: by sent time,
// falling back to the order the events were stored for equal timestamps.
func MessagesFromEvents(events []models.InteractionEvent) []models.Message {
	messages := make([]models.Message, 0, len(events))
	for _, e := range events {
		if m, ok := e.Message(); ok {
			messages = append(messages, m)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages
}

// ForInteraction re-derives status from stored history. answered is only
// consulted for channels without a message thread.
func ForInteraction(i *models.Interaction, events []models.InteractionEvent, answered bool) Result {
	if i.Channel == models.ChannelChat {
		return Derive(MessagesFromEvents(events))
	}
	return DeriveAnswered(answered)
}

// Apply copies the result onto the interaction and reports whether anything changed.
func Apply(i *models.Interaction, r Result) bool {
	changed := i.Status != r.Status || i.NeedsResponse != r.NeedsResponse || i.UnreadCount != r.UnreadCount
	i.Status = r.Status
	i.NeedsResponse = r.NeedsResponse
	i.UnreadCount = r.UnreadCount
	return changed
}

// HasSellerReply reports whether the seller or the system ever answered.
func HasSellerReply(messages []models.Message) bool {
	for _, m := range messages {
		if m.Author == models.AuthorSeller || m.Author == models.AuthorSystem {
			return true
		}
	}
	return false
}

// Recompute re-derives status from stored events alone. Reviews and questions
// count as answered once a seller reply event exists.
func Recompute(i *models.Interaction, events []models.InteractionEvent) Result {
	messages := MessagesFromEvents(events)
	if i.Channel == models.ChannelChat {
		return Derive(messages)
	}
	return DeriveAnswered(HasSellerReply(messages))
}

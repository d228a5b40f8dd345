package team

import (
	"encoding/json"
	"time"
)

// Membership event types broadcast on the team stream.
const (
	MemberJoined  = "member_joined"
	MemberQuit    = "member_quit"
	OwnerChanged  = "owner_changed"
	TeamDissolved = "team_dissolved"
	TeamDeleted   = "team_deleted"
)

// Event is the wire form of a membership change.
type Event struct {
	Type       string    `json:"type"`
	TeamID     string    `json:"team_id"`
	UserID     string    `json:"user_id"`
	NewOwnerID string    `json:"new_owner_id,omitempty"`
	At         time.Time `json:"at"`
}

func (s Service) publish(teamID, eventType, userID, newOwnerID string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Type:       eventType,
		TeamID:     teamID,
		UserID:     userID,
		NewOwnerID: newOwnerID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("event marshal failed", "team_id", teamID, "type", eventType, "error", err)
		return
	}
	s.hub.Broadcast(teamID, payload)
}

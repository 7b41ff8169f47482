package models

import "time"

// ChatEntry is one message in a chamado's conversation thread. Negotiation
// milestones are recorded as system-authored entries for audit.
type ChatEntry struct {
	ID        string    `bson:"id" json:"id"`
	Author    Party     `bson:"author" json:"author"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

package entities

import (
	"strconv"
)

// Destination is a notification target: a chat or channel and an optional topic within it
type Destination struct {
	ChannelID string `json:"channel_id" db:"channel_id"`
	TopicID   *int64 `json:"topic_id,omitempty" db:"topic_id"`
}

// Key identifies the (channel, topic) pair
func (d Destination) Key() string {
	if d.TopicID == nil {
		return d.ChannelID
	}
	return d.ChannelID + "#" + strconv.FormatInt(*d.TopicID, 10)
}

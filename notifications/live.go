package notifications

import (
	"context"

	"github.com/Dosada05/pyramid-ladder/pyramid"
)

// LiveNotifier pushes every event to the websocket room of its pyramid.
type LiveNotifier struct {
	hub *pyramid.Hub
}

func NewLiveNotifier(hub *pyramid.Hub) *LiveNotifier {
	return &LiveNotifier{hub: hub}
}

func (n *LiveNotifier) Notify(_ context.Context, event Event) error {
	room := pyramid.RoomName(event.PyramidID)
	return n.hub.BroadcastToRoom(room, pyramid.LiveMessage{
		Type:    string(event.Kind),
		Payload: event,
		RoomID:  room,
	})
}

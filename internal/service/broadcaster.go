package service

// Broadcaster pushes messages to creators watching an application's live
// feed. Implemented by the websocket hub; declared here to avoid an import
// cycle.
type Broadcaster interface {
	BroadcastToApp(appID string, msgType string, payload interface{})
	DisconnectApp(appID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToApp(string, string, interface{}) {}
func (nopBroadcaster) DisconnectApp(string)                       {}

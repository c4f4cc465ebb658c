// internal/models/ssh_models.go
package models

import "time"

// TerminalInit is the first message a client sends on the terminal WebSocket.
type TerminalInit struct {
	NodeName string `json:"nodeName"`
	NodeIP   string `json:"nodeIp"`
	Username string `json:"username"`
}

// TerminalSessionInfo represents information about an active terminal bridge session
type TerminalSessionInfo struct {
	ID         string    `json:"id"`
	NodeName   string    `json:"nodeName"`
	NodeIP     string    `json:"nodeIp"`
	Username   string    `json:"username"`
	State      string    `json:"state"`
	RemoteAddr string    `json:"remoteAddr"` // Client address of the WebSocket
	Owner      string    `json:"owner"`      // API user who opened the terminal
	Created    time.Time `json:"created"`
	Expiration time.Time `json:"expiration"` // Forced teardown after this point
}

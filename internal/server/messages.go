package server

import "encoding/json"

// ClientMessage is the inbound websocket envelope. Payload stays raw until
// the handler for the type parses it.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

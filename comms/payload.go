package comms

import (
	"encoding/json"
)

// Cmd is an operator command received from a client.
type Cmd struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Vx    float64 `json:"vx,omitempty"`
	Vy    float64 `json:"vy,omitempty"`
	Omega float64 `json:"omega,omitempty"`
	Mode  string  `json:"mode,omitempty"`
}

// Reply acknowledges a Cmd.
type Reply struct {
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Envelope tags everything sent to a client with its type.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	envelopeState = "state"
	envelopeReply = "reply"
)

func encode(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Data: data})
}

package main

import (
	"net/http"

	"github.com/CodedInternet/goswerve/comms"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TelemetryHandler upgrades the request and hands the connection to the conductor
// for snapshots out and commands in.
func TelemetryHandler(conductor *comms.Conductor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response
			return
		}
		conductor.Serve(conn)
	}
}

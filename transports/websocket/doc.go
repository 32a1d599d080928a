// Package websocket streams republished vehicle states to browser clients.
//
//	hub := websocket.NewHub()
//	mux.Handle("/ws", hub)
//
// Hub is a messaging.Sink, so it can be combined with a pub/sub sink in a
// messaging.MultiSink.
package websocket

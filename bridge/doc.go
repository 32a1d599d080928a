// Package bridge connects a pub/sub vehicle state channel to a remote
// request/reply endpoint.
//
// The Controller has two entry points. OnVehicleStateEvent is called for
// each local state update: the state is encoded and sent as one request.
// OnTick is called periodically (Run drives it from a ticker): it waits a
// bounded time for the reply, decodes it and republishes it to a Sink.
//
// Every failure is logged once with a kind attribute (connect, send,
// receive, decode, publish) and counted in Stats. The failed message is
// dropped and the controller carries on with the next event or tick.
//
// Basic usage:
//
//	adapter := zmq.NewAdapter("tcp://localhost:5555")
//	controller := bridge.NewController(adapter, sink,
//		bridge.WithTickPeriod(100*time.Millisecond))
//
//	source.Subscribe(ctx, controller.OnVehicleStateEvent)
//	go controller.Run(ctx)
package bridge

// Package messaging defines the pub/sub surface the bridge sits behind.
//
// A Source produces local vehicle state events and a Sink republishes
// states that came back from the remote endpoint. Concrete implementations
// live in the transports packages (AMQP, MQTT, WebSocket); MemoryBus is an
// in-process implementation used for tests and the stdin/stdout mode of the
// command line tool.
//
// Example usage:
//
//	local := messaging.NewMemoryBus()
//	remote := messaging.NewMemoryBus()
//
//	controller := bridge.NewController(adapter, remote)
//	local.Subscribe(ctx, controller.OnVehicleStateEvent)
//
//	local.Publish(ctx, contracts.VehicleState{PositionX: 1})
package messaging

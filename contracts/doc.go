// Package contracts defines the values that cross the bridge.
//
// VehicleState is the only domain entity: five double precision fields with no
// identity and no timestamp. ErrorKind classifies every failure the bridge can
// observe so that each one ends up in a structured log entry carrying its kind.
package contracts

// Package mqtt provides the MQTT pub/sub side of netbridge on top of the
// Eclipse Paho client. Transport subscribes to the inbound vehicle state
// topic and publishes republished remote states on the outbound topic.
package mqtt

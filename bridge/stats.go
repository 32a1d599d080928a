package bridge

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of controller activity
type Stats struct {
	Sent            int64     `json:"sent"`
	SendFailures    int64     `json:"sendFailures"`
	Received        int64     `json:"received"`
	ReceiveFailures int64     `json:"receiveFailures"`
	DecodeFailures  int64     `json:"decodeFailures"`
	Republished     int64     `json:"republished"`
	PublishFailures int64     `json:"publishFailures"`
	EmptyTicks      int64     `json:"emptyTicks"`
	Timestamp       time.Time `json:"timestamp"`
}

// Failures returns the total of all failure counters
func (s Stats) Failures() int64 {
	return s.SendFailures + s.ReceiveFailures + s.DecodeFailures + s.PublishFailures
}

type counters struct {
	sent            atomic.Int64
	sendFailures    atomic.Int64
	received        atomic.Int64
	receiveFailures atomic.Int64
	decodeFailures  atomic.Int64
	republished     atomic.Int64
	publishFailures atomic.Int64
	emptyTicks      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:            c.sent.Load(),
		SendFailures:    c.sendFailures.Load(),
		Received:        c.received.Load(),
		ReceiveFailures: c.receiveFailures.Load(),
		DecodeFailures:  c.decodeFailures.Load(),
		Republished:     c.republished.Load(),
		PublishFailures: c.publishFailures.Load(),
		EmptyTicks:      c.emptyTicks.Load(),
		Timestamp:       time.Now(),
	}
}

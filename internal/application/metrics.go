package application

import "expvar"

// opCounters is exposed on /debug/vars as identity_ops.
var opCounters = expvar.NewMap("identity_ops")

func countOp(op string, err error) {
	if err != nil {
		opCounters.Add(op+".error", 1)
		return
	}
	opCounters.Add(op+".ok", 1)
}

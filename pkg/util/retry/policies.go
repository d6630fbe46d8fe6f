package retry

import "time"

// Policies groups every retry budget and settle delay used by the operator.
type Policies struct {
	// Connect bounds opening the remote shell of a machine.
	Connect Policy
	// InitReady bounds waiting for an instance to finish initialization.
	InitReady Policy
	// InitSettle is slept after InitReady.
	InitSettle time.Duration
	// InstanceReady bounds waiting for the instance process to answer.
	InstanceReady Policy
	// ClusterStatus bounds waiting for the coordinator to report one
	// primary and no failing nodes.
	ClusterStatus Policy
	// ClusterStatusSettle is slept before ClusterStatus is polled.
	ClusterStatusSettle time.Duration
	// Primary bounds looking for the writable instance of a group.
	Primary Policy
}

// DefaultPolicies returns the production budgets.
func DefaultPolicies() Policies {
	return Policies{
		Connect:             Policy{Attempts: 600, Interval: time.Second, OnExhaustion: Fail},
		InitReady:           Policy{Attempts: 300, Interval: time.Second, OnExhaustion: WarnAndContinue},
		InitSettle:          10 * time.Second,
		InstanceReady:       Policy{Attempts: 300, Interval: time.Second, OnExhaustion: WarnAndContinue},
		ClusterStatus:       Policy{Attempts: 60, Interval: time.Second, OnExhaustion: WarnAndContinue},
		ClusterStatusSettle: 5 * time.Second,
		Primary:             Policy{Attempts: 1, Interval: time.Second, OnExhaustion: Fail},
	}
}

// Immediate returns policies with the default attempt counts and no waiting.
// Tests use it to exercise retry budgets without sleeping.
func Immediate() Policies {
	p := DefaultPolicies()
	for _, pol := range []*Policy{&p.Connect, &p.InitReady, &p.InstanceReady, &p.ClusterStatus, &p.Primary} {
		pol.Interval = 0
	}
	p.InitSettle = 0
	p.ClusterStatusSettle = 0
	return p
}

package postgresqlcluster

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/radondb/postgres-operator/pkg/util/retry"
)

const (
	finalizerName = "postgres.radondb.io/finalizer"

	// LastAppliedAnnotation holds the JSON spec the diff handlers last
	// converged to.
	LastAppliedAnnotation = "postgres.radondb.io/last-applied-spec"

	// TimerLayout formats status.timerLastRun.
	TimerLayout = "2006-01-02 15:04:05"

	// DefaultCorrectionInterval separates two correction passes.
	DefaultCorrectionInterval = time.Minute

	passwordLength = 8
)

// Options configures the reconciler.
type Options struct {
	Policies           retry.Policies
	CorrectionInterval time.Duration
	Clock              clock.PassiveClock
}

// DefaultOptions returns the production configuration.
func DefaultOptions() Options {
	return Options{
		Policies:           retry.DefaultPolicies(),
		CorrectionInterval: DefaultCorrectionInterval,
		Clock:              clock.RealClock{},
	}
}

func (o Options) clock() clock.PassiveClock {
	if o.Clock == nil {
		return clock.RealClock{}
	}
	return o.Clock
}

func (o Options) interval() time.Duration {
	if o.CorrectionInterval <= 0 {
		return DefaultCorrectionInterval
	}
	return o.CorrectionInterval
}

package circuitbreaker

// Outcome is the breaker-side reading of a finished call.
type Outcome int

const (
	OutcomeSuccess  Outcome = iota // counts toward closing
	OutcomeFailure                 // counts toward tripping
	OutcomeExcluded                // error propagates, counters untouched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Classifier decides how a call's error is scored. Errors that indicate
// a fault in the caller's input rather than in the dependency should be
// classified OutcomeExcluded so they cannot trip the breaker.
type Classifier func(err error) Outcome

func defaultClassifier(err error) Outcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

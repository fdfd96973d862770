package state

// StepResult is the persisted outcome of a single step.
type StepResult string

const (
	ResultPending StepResult = "pending"
	ResultSuccess StepResult = "success"
	ResultError   StepResult = "error"
)

func (r StepResult) String() string {
	return string(r)
}

// IsTerminal reports whether the step already ran.
func (r StepResult) IsTerminal() bool {
	return r == ResultSuccess || r == ResultError
}

var AllResults = []StepResult{
	ResultPending,
	ResultSuccess,
	ResultError,
}

// RunnerState is the in-memory lifecycle of a transaction runner.
type RunnerState string

const (
	RunnerPending  RunnerState = "pending"
	RunnerRunning  RunnerState = "running"
	RunnerFinished RunnerState = "finished"
)

func (s RunnerState) String() string {
	return string(s)
}

type Transition[T ~string] struct {
	From T
	To   T
}

// A step result moves out of pending exactly once and never reverts.
var ValidResultTransitions = []Transition[StepResult]{
	{From: ResultPending, To: ResultSuccess},
	{From: ResultPending, To: ResultError},
}

var ValidRunnerTransitions = []Transition[RunnerState]{
	{From: RunnerPending, To: RunnerRunning},
	{From: RunnerRunning, To: RunnerFinished},
	{From: RunnerPending, To: RunnerFinished},
}

func IsValidTransition(from, to StepResult) bool {
	return isValid(ValidResultTransitions, from, to)
}

func IsValidRunnerTransition(from, to RunnerState) bool {
	return isValid(ValidRunnerTransitions, from, to)
}

func isValid[T ~string](transitions []Transition[T], from, to T) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

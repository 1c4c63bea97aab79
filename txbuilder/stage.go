package txbuilder

import "fmt"

// Stage is a step of transaction assembly.
type Stage int

const (
	StageFraming Stage = iota
	StageEncoding
	StageSelecting
	StageResolvingInputs
	StageAssembling
)

func (s Stage) String() string {
	switch s {
	case StageFraming:
		return "framing"
	case StageEncoding:
		return "encoding"
	case StageSelecting:
		return "selecting"
	case StageResolvingInputs:
		return "resolving inputs"
	case StageAssembling:
		return "assembling"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage an assembly failed in. It unwraps to the
// underlying error so errors.Is matches the package sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

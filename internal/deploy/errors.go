package deploy

import (
	"errors"
	"fmt"
)

// Step names a phase of a deployment run
type Step string

const (
	StepValidate Step = "validate"
	StepPackage  Step = "package"
	StepBucket   Step = "bucket"
	StepRole     Step = "role"
	StepFunction Step = "function"
	StepTrigger  Step = "trigger"
)

// ErrArtifactMissing is returned when the compiled handler cannot be read
var ErrArtifactMissing = errors.New("handler artifact missing")

// StepError reports the step that aborted a deployment. Err is the raw cause.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deploy step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

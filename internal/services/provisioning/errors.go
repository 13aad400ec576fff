package provisioning

import (
	"fmt"

	"github.com/pkg/errors"

	"cipherlink/internal/domain"
)

var (
	// ErrInFlight is returned by Provision while another run is active.
	ErrInFlight = errors.New("provisioning already in progress")

	// ErrFinalization marks a failure after key material was installed.
	// The device holds the account's keys but is not fully registered.
	ErrFinalization = errors.New("provisioning finalization failed")
)

// FinalizationError reports which post-install step failed.
type FinalizationError struct {
	Step string
	Err  error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrFinalization, e.Step, e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }

// Is lets callers match the kind with errors.Is(err, ErrFinalization).
func (e *FinalizationError) Is(target error) bool { return target == ErrFinalization }

func precondition(what string) error {
	return errors.Wrapf(domain.ErrFatalPrecondition, "%s not available", what)
}

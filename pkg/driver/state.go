package driver

import "fmt"

// State represents a pipeline's lifecycle state.
type State string

const (
	// StateClosed means the pipeline has not been opened. Stream and
	// calibration information are still unknown.
	StateClosed State = "closed"
	// StateOpened means the pipeline is open and streams may be
	// enabled, but no frames are flowing yet.
	StateOpened State = "opened"
	// StateRunning means the pipeline has been started and frames may
	// be read from it.
	StateRunning State = "running"
)

// Update moves s to next after f succeeds. If the transition is not
// allowed or f fails, s stays unchanged. Closing is allowed from any
// state so teardown never fails on lifecycle grounds.
func (s *State) Update(next State, f func() error) error {
	switch next {
	case StateOpened:
		if *s != StateClosed {
			return fmt.Errorf("invalid state: pipeline is already opened")
		}
	case StateRunning:
		if *s == StateClosed {
			return fmt.Errorf("invalid state: pipeline is closed")
		}
		if *s == StateRunning {
			return fmt.Errorf("invalid state: pipeline is already running")
		}
	case StateClosed:
	}

	if err := f(); err != nil {
		return err
	}
	*s = next
	return nil
}

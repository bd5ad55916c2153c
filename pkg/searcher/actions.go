package searcher

import (
	"fmt"

	"github.com/edoakes/tunekit/pkg/model"
	"github.com/edoakes/tunekit/pkg/prand"
)

// Action is an action a searcher would like the driver to perform.
type Action interface {
	String() string
}

// Create is a directive from the searcher to create a new trial.
type Create struct {
	RequestID model.RequestID `json:"request_id"`
	// TrialSeed is in [0, 2**31 - 1].
	TrialSeed uint32             `json:"trial_seed"`
	Hparams   model.HParamSample `json:"hparams"`
}

// NewCreate initializes a Create action with the given random state and sample. The
// request ID and trial seed both come from the searcher RNG, so a replayed search
// proposes identical trials.
func NewCreate(rand *prand.State, s model.HParamSample) Create {
	return Create{
		RequestID: model.NewRequestID(rand),
		TrialSeed: uint32(rand.Int64n(1 << 31)),
		Hparams:   s,
	}
}

func (action Create) String() string {
	return fmt.Sprintf("Create{RequestID: %s, TrialSeed: %d, Hparams: %v}",
		action.RequestID, action.TrialSeed, action.Hparams)
}

// Stop is a directive from the searcher to stop a trial.
type Stop struct {
	RequestID model.RequestID `json:"request_id"`
}

// NewStop initializes a Stop action for the given trial.
func NewStop(requestID model.RequestID) Stop {
	return Stop{RequestID: requestID}
}

func (action Stop) String() string {
	return fmt.Sprintf("Stop{RequestID: %s}", action.RequestID)
}

// Shutdown marks the searcher as completed.
type Shutdown struct {
	Cancel  bool `json:"cancel"`
	Failure bool `json:"failure"`
}

func (action Shutdown) String() string {
	return fmt.Sprintf("Shutdown{Cancel: %v, Failure: %v}", action.Cancel, action.Failure)
}

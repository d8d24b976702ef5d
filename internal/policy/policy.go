package policy

import (
	"errors"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

var (
	// ErrUpdateFailed means a policy update produced non-finite
	// parameters; the batch is skipped and parameters stay unchanged.
	ErrUpdateFailed = errors.New("policy: update failed")
	// ErrUnknownPolicy means no factory is registered under the name.
	ErrUnknownPolicy = errors.New("policy: unknown policy")
	// ErrBadCheckpoint means a checkpoint blob could not be decoded.
	ErrBadCheckpoint = errors.New("policy: bad checkpoint")
)

// Step is one decision cycle's contribution to a trajectory: the state
// the policy saw, the action actually executed, its reward, and the
// log-probability mass of the branch that sampled it.
type Step struct {
	State   memory.State
	Action  Action
	Reward  float64
	LogProb float64
}

// Trajectory is the ordered step sequence of one episode. The trainer
// owns trajectories and feeds each batch to Update exactly once.
type Trajectory []Step

// Return computes the discounted return of the trajectory.
func (tr Trajectory) Return(gamma float64) float64 {
	ret, scale := 0.0, 1.0
	for _, s := range tr {
		ret += scale * s.Reward
		scale *= gamma
	}
	return ret
}

// Advantages maps a batch of trajectories to relative advantages:
// each discounted return minus the group mean. The group baseline
// stands in for a learned value function.
func Advantages(batch []Trajectory, gamma float64) []float64 {
	if len(batch) == 0 {
		return nil
	}
	adv := make([]float64, len(batch))
	var sum float64
	for i, tr := range batch {
		adv[i] = tr.Return(gamma)
		sum += adv[i]
	}
	mean := sum / float64(len(batch))
	for i := range adv {
		adv[i] -= mean
	}
	return adv
}

// Policy decides memory actions and learns from trajectory batches.
// Implementations must be safe for a trainer that interleaves Decide
// and Update from one goroutine and reads Epsilon from another.
type Policy interface {
	// Decide samples an action for the state among the structurally
	// valid kinds and returns the log-probability of the branch that
	// produced it.
	Decide(state memory.State) (Action, float64, error)
	// Update applies one GRPO step over a batch of trajectories.
	Update(batch []Trajectory) error
	// DecayEpsilon applies one exploration decay step. The trainer
	// calls it once per completed episode batch, never per decision.
	DecayEpsilon()
	Epsilon() float64
	SetEpsilon(eps float64)
	// Checkpoint serializes learned state; Restore round-trips it
	// without altering subsequent Decide distributions.
	Checkpoint() ([]byte, error)
	Restore(blob []byte) error
	Name() string
}

// Config carries the training hyperparameters shared by policy
// implementations.
type Config struct {
	LearningRate float64
	Gamma        float64
	Epsilon      float64
	EpsilonDecay float64
	EpsilonMin   float64
	// Clip bounds the importance ratio between the sampling-time and
	// update-time probability of an action.
	Clip float64
	// Seed fixes the exploration RNG; 0 seeds from the clock.
	Seed int64
}

// DefaultConfig returns the stock GRPO hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		Gamma:        0.95,
		Epsilon:      0.2,
		EpsilonDecay: 0.95,
		EpsilonMin:   0.01,
		Clip:         0.2,
	}
}

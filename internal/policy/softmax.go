package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

const checkpointVersion = 1

// Softmax is a four-logit policy: one logit per action kind, a softmax
// distribution masked to the structurally valid kinds, epsilon-greedy
// exploration, and a GRPO update against the group-mean baseline.
// Update and Delete always target the most similar retrieved record.
type Softmax struct {
	mu      sync.Mutex
	logits  [numKinds]float64
	epsilon float64
	updates int

	cfg Config
	rng *rand.Rand
}

var _ Policy = (*Softmax)(nil)

// NewSoftmax builds a policy with uniform initial logits.
func NewSoftmax(cfg Config) *Softmax {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Softmax{
		epsilon: cfg.Epsilon,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the policy in registries and checkpoints.
func (p *Softmax) Name() string {
	return "softmax"
}

// Decide samples an action. With probability epsilon it draws uniformly
// over the valid kinds, otherwise from the softmax distribution; the
// returned log-probability is the mass of the branch that was actually
// used to sample.
func (p *Softmax) Decide(state memory.State) (Action, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kinds := ValidKinds(state.Retrieved)

	var kind Kind
	var mass float64
	if p.rng.Float64() < p.epsilon {
		kind = kinds[p.rng.Intn(len(kinds))]
		mass = 1.0 / float64(len(kinds))
	} else {
		probs := p.distribution(kinds)
		i := sample(p.rng, probs)
		kind = kinds[i]
		mass = probs[i]
	}
	return buildAction(kind, state), math.Log(mass), nil
}

// Update applies one GRPO step: per-trajectory discounted returns,
// group-mean baseline, clipped importance ratio against the recorded
// sampling mass, and a softmax policy gradient per valid kind. The
// whole batch is computed against the incoming parameters and committed
// atomically; a non-finite result rejects the batch unchanged.
func (p *Softmax) Update(batch []Trajectory) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var steps int
	for _, tr := range batch {
		steps += len(tr)
	}
	if steps == 0 {
		return nil
	}

	adv := Advantages(batch, p.cfg.Gamma)
	scale := p.cfg.LearningRate / float64(steps)

	next := p.logits
	for i, tr := range batch {
		for _, step := range tr {
			kinds := ValidKinds(step.State.Retrieved)
			probs := p.distribution(kinds)

			var mass float64
			for j, k := range kinds {
				if k == step.Action.Kind() {
					mass = probs[j]
				}
			}
			ratio := clamp(mass/math.Exp(step.LogProb), 1-p.cfg.Clip, 1+p.cfg.Clip)

			for j, k := range kinds {
				grad := -probs[j]
				if k == step.Action.Kind() {
					grad = 1 - probs[j]
				}
				next[k] += scale * ratio * adv[i] * grad
			}
		}
	}

	for _, l := range next {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return fmt.Errorf("%w: non-finite logits", ErrUpdateFailed)
		}
	}
	p.logits = next
	p.updates++
	return nil
}

// DecayEpsilon applies epsilon <- max(floor, epsilon*decay).
func (p *Softmax) DecayEpsilon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epsilon = math.Max(p.cfg.EpsilonMin, p.epsilon*p.cfg.EpsilonDecay)
}

// Epsilon returns the current exploration rate.
func (p *Softmax) Epsilon() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epsilon
}

// SetEpsilon overrides the exploration rate; evaluation pins it to 0.
func (p *Softmax) SetEpsilon(eps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epsilon = eps
}

type checkpoint struct {
	Version int       `json:"version"`
	Logits  []float64 `json:"logits"`
	Epsilon float64   `json:"epsilon"`
	Decay   float64   `json:"epsilon_decay"`
	Floor   float64   `json:"epsilon_min"`
	Updates int       `json:"updates"`
}

// Checkpoint serializes the learned state as versioned JSON.
func (p *Softmax) Checkpoint() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(checkpoint{
		Version: checkpointVersion,
		Logits:  p.logits[:],
		Epsilon: p.epsilon,
		Decay:   p.cfg.EpsilonDecay,
		Floor:   p.cfg.EpsilonMin,
		Updates: p.updates,
	})
}

// Restore loads a checkpoint blob. Logits, epsilon, and the decay
// schedule round-trip exactly so subsequent decisions match the
// checkpointed policy.
func (p *Softmax) Restore(blob []byte) error {
	var cp checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if cp.Version != checkpointVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadCheckpoint, cp.Version)
	}
	if len(cp.Logits) != numKinds {
		return fmt.Errorf("%w: expected %d logits, got %d", ErrBadCheckpoint, numKinds, len(cp.Logits))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.logits[:], cp.Logits)
	p.epsilon = cp.Epsilon
	p.cfg.EpsilonDecay = cp.Decay
	p.cfg.EpsilonMin = cp.Floor
	p.updates = cp.Updates
	return nil
}

// distribution computes softmax probabilities over the given kinds
// only; invalid kinds get no mass. Callers hold p.mu.
func (p *Softmax) distribution(kinds []Kind) []float64 {
	maxLogit := math.Inf(-1)
	for _, k := range kinds {
		if p.logits[k] > maxLogit {
			maxLogit = p.logits[k]
		}
	}
	probs := make([]float64, len(kinds))
	var sum float64
	for i, k := range kinds {
		probs[i] = math.Exp(p.logits[k] - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func buildAction(kind Kind, state memory.State) Action {
	switch kind {
	case KindAdd:
		return Add()
	case KindUpdate:
		return Update(state.Retrieved[0].Record.ID)
	case KindDelete:
		return Delete(state.Retrieved[0].Record.ID)
	default:
		return None()
	}
}

func sample(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return i
		}
	}
	return len(probs) - 1
}

func clamp(x, lo, hi float64) float64 {
	switch {
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}

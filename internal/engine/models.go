package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// neuron advances one resolution step. in is the summed synaptic input
// arriving at this step.
type neuron interface {
	update(in float64, step int64, rng *rand.Rand) bool
}

type modelFactory func(p Params, h float64) (neuron, error)

var models = map[string]modelFactory{
	"iaf_psc_delta":     newIAFPscDelta,
	"iaf_psc_exp":       newIAFPscExp,
	"parrot_neuron":     func(Params, float64) (neuron, error) { return &parrot{}, nil },
	"poisson_generator": newPoissonGenerator,
	"spike_generator":   newSpikeGenerator,
}

// Models returns the names of all models Create accepts.
func Models() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newNeuron(model string, p Params, h float64) (neuron, error) {
	f, ok := models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return f(p, h)
}

func (p Params) float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("parameter %s: expected number, got %T", key, v)
	}
}

// lif holds membrane state shared by the integrate-and-fire models.
type lif struct {
	eL, vReset, vTh, iE float64
	p22, p20           float64
	refSteps, refLeft  int
	v                  float64
}

// paramReader accumulates the first lookup error so callers can read
// several parameters and check once.
type paramReader struct {
	p   Params
	err error
}

func (r *paramReader) get(key string, def float64) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.p.float(key, def)
	r.err = err
	return v
}

func newLIF(p Params, h float64) (lif, error) {
	r := &paramReader{p: p}
	cm := r.get("C_m", 250)
	tauM := r.get("tau_m", 10)
	tRef := r.get("t_ref", 2)
	eL := r.get("E_L", -70)
	vReset := r.get("V_reset", -70)
	vTh := r.get("V_th", -55)
	iE := r.get("I_e", 0)
	v := r.get("V_m", eL)
	if r.err != nil {
		return lif{}, r.err
	}
	if cm <= 0 || tauM <= 0 {
		return lif{}, fmt.Errorf("C_m and tau_m must be positive")
	}
	if vReset >= vTh {
		return lif{}, fmt.Errorf("V_reset must be below V_th")
	}
	p22 := math.Exp(-h / tauM)
	return lif{
		eL: eL, vReset: vReset, vTh: vTh, iE: iE,
		p22:      p22,
		p20:      tauM / cm * (1 - p22),
		refSteps: int(math.Round(tRef / h)),
		v:        v,
	}, nil
}

func (n *lif) integrate(current, jump float64) bool {
	if n.refLeft > 0 {
		n.refLeft--
		return false
	}
	n.v = n.eL + (n.v-n.eL)*n.p22 + current*n.p20 + jump
	if n.v >= n.vTh {
		n.v = n.vReset
		n.refLeft = n.refSteps
		return true
	}
	return false
}

// iafPscDelta: input causes a voltage jump of weight mV.
type iafPscDelta struct{ lif }

func newIAFPscDelta(p Params, h float64) (neuron, error) {
	l, err := newLIF(p, h)
	if err != nil {
		return nil, err
	}
	return &iafPscDelta{l}, nil
}

func (n *iafPscDelta) update(in float64, _ int64, _ *rand.Rand) bool {
	return n.integrate(n.iE, in)
}

// iafPscExp: input adds weight pA to an exponentially decaying current.
type iafPscExp struct {
	lif
	p11ex, p11in float64
	iEx, iIn     float64
}

func newIAFPscExp(p Params, h float64) (neuron, error) {
	l, err := newLIF(p, h)
	if err != nil {
		return nil, err
	}
	r := &paramReader{p: p}
	tauEx := r.get("tau_syn_ex", 2)
	tauIn := r.get("tau_syn_in", 2)
	if r.err != nil {
		return nil, r.err
	}
	if tauEx <= 0 || tauIn <= 0 {
		return nil, fmt.Errorf("synaptic time constants must be positive")
	}
	return &iafPscExp{lif: l, p11ex: math.Exp(-h / tauEx), p11in: math.Exp(-h / tauIn)}, nil
}

func (n *iafPscExp) update(in float64, _ int64, _ *rand.Rand) bool {
	spiked := n.integrate(n.iE+n.iEx+n.iIn, 0)
	n.iEx *= n.p11ex
	n.iIn *= n.p11in
	if in >= 0 {
		n.iEx += in
	} else {
		n.iIn += in
	}
	return spiked
}

// parrot repeats any input as a spike.
type parrot struct{}

func (*parrot) update(in float64, _ int64, _ *rand.Rand) bool { return in != 0 }

type poissonGenerator struct{ p float64 }

func newPoissonGenerator(p Params, h float64) (neuron, error) {
	rate, err := p.float("rate", 0)
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("rate must be non-negative")
	}
	return &poissonGenerator{p: rate * h / 1000}, nil
}

func (g *poissonGenerator) update(_ float64, _ int64, rng *rand.Rand) bool {
	return g.p > 0 && rng.Float64() < g.p
}

// spikeGenerator emits at pre-computed steps. Spikes falling in the same
// step collapse into one.
type spikeGenerator struct {
	steps []int64
	next  int
}

func newSpikeGenerator(p Params, h float64) (neuron, error) {
	g := &spikeGenerator{}
	raw, ok := p["spike_times"]
	if !ok {
		return g, nil
	}
	times, ok := raw.([]float64)
	if !ok {
		return nil, fmt.Errorf("spike_times: expected []float64, got %T", raw)
	}
	for _, t := range times {
		if t < 0 {
			return nil, fmt.Errorf("spike_times must be non-negative, got %v", t)
		}
		g.steps = append(g.steps, int64(math.Round(t/h)))
	}
	sort.Slice(g.steps, func(i, j int) bool { return g.steps[i] < g.steps[j] })
	return g, nil
}

func (g *spikeGenerator) update(_ float64, step int64, _ *rand.Rand) bool {
	spiked := false
	for g.next < len(g.steps) && g.steps[g.next] <= step {
		spiked = true
		g.next++
	}
	return spiked
}

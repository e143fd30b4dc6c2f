package sqw

import "math"

func gauss(x, x0, sigma, amp float64) float64 {
	if sigma <= 0 {
		return 0
	}
	d := (x - x0) / sigma
	return amp / (sigma * math.Sqrt(2*math.Pi)) * math.Exp(-0.5*d*d)
}

// bose returns the Bose-Einstein occupation factor for energy transfer E
// in meV at temperature T in K, cut off near the elastic line.
func bose(E, T float64) float64 {
	const kB = 0.08617333 // meV/K
	const cutoff = 0.02   // meV
	if T <= 0 {
		return 1
	}
	if math.Abs(E) < cutoff {
		E = math.Copysign(cutoff, E)
	}
	n := 1 / (math.Exp(math.Abs(E)/(kB*T)) - 1)
	if E >= 0 {
		return n + 1
	}
	return n
}

// Phonon is an acoustic branch with linear dispersion around a zone
// centre, detailed-balanced creation and annihilation peaks and an
// incoherent elastic line.
type Phonon struct {
	G     [3]float64 // zone centre (rlu)
	Speed float64    // meV per rlu
	Sigma float64    // intrinsic energy width (sigma, meV)
	Amp   float64
	T     float64 // K

	IncAmp   float64
	IncSigma float64

	table params
}

func NewPhonon() *Phonon {
	m := &Phonon{
		G:     [3]float64{1, 0, 0},
		Speed: 20,
		Sigma: 0.3,
		Amp:   1,
		T:     100,
	}
	m.table = params{
		"G_h":       &m.G[0],
		"G_k":       &m.G[1],
		"G_l":       &m.G[2],
		"speed":     &m.Speed,
		"sigma":     &m.Sigma,
		"amp":       &m.Amp,
		"T":         &m.T,
		"inc_amp":   &m.IncAmp,
		"inc_sigma": &m.IncSigma,
	}
	return m
}

func (m *Phonon) Eval(h, k, l, E float64) float64 {
	dh, dk, dl := h-m.G[0], k-m.G[1], l-m.G[2]
	q := math.Sqrt(dh*dh + dk*dk + dl*dl)
	e0 := m.Speed * q

	s := gauss(E, e0, m.Sigma, m.Amp) * bose(E, m.T)
	s += gauss(E, -e0, m.Sigma, m.Amp) * bose(E, m.T)
	if m.IncAmp > 0 {
		s += gauss(E, 0, m.IncSigma, m.IncAmp)
	}
	return s
}

func (m *Phonon) ParamNames() []string { return m.table.ParamNames() }
func (m *Phonon) SetParam(n string, v float64) error { return m.table.SetParam(n, v) }
func (m *Phonon) Param(n string) (float64, bool) { return m.table.Param(n) }

// Magnon is a gapped ferromagnetic branch: E(q) = sqrt(gap^2 + (D q^2)^2).
type Magnon struct {
	G         [3]float64
	Stiffness float64 // meV rlu^-2
	Gap       float64 // meV
	Sigma     float64
	Amp       float64
	T         float64

	IncAmp   float64
	IncSigma float64

	table params
}

func NewMagnon() *Magnon {
	m := &Magnon{
		G:         [3]float64{1, 1, 0},
		Stiffness: 30,
		Gap:       0.5,
		Sigma:     0.25,
		Amp:       1,
		T:         50,
	}
	m.table = params{
		"G_h":       &m.G[0],
		"G_k":       &m.G[1],
		"G_l":       &m.G[2],
		"stiffness": &m.Stiffness,
		"gap":       &m.Gap,
		"sigma":     &m.Sigma,
		"amp":       &m.Amp,
		"T":         &m.T,
		"inc_amp":   &m.IncAmp,
		"inc_sigma": &m.IncSigma,
	}
	return m
}

func (m *Magnon) Eval(h, k, l, E float64) float64 {
	dh, dk, dl := h-m.G[0], k-m.G[1], l-m.G[2]
	q2 := dh*dh + dk*dk + dl*dl
	dq := m.Stiffness * q2
	e0 := math.Sqrt(m.Gap*m.Gap + dq*dq)

	s := gauss(E, e0, m.Sigma, m.Amp) * bose(E, m.T)
	s += gauss(E, -e0, m.Sigma, m.Amp) * bose(E, m.T)
	if m.IncAmp > 0 {
		s += gauss(E, 0, m.IncSigma, m.IncAmp)
	}
	return s
}

func (m *Magnon) ParamNames() []string { return m.table.ParamNames() }
func (m *Magnon) SetParam(n string, v float64) error { return m.table.SetParam(n, v) }
func (m *Magnon) Param(n string) (float64, bool) { return m.table.Param(n) }

// Elastic is a single elastic line, for vanadium-type width scans.
type Elastic struct {
	Sigma float64
	Amp   float64

	table params
}

func NewElastic() *Elastic {
	m := &Elastic{Sigma: 0.1, Amp: 1}
	m.table = params{
		"sigma": &m.Sigma,
		"amp":   &m.Amp,
	}
	return m
}

func (m *Elastic) Eval(h, k, l, E float64) float64 {
	return gauss(E, 0, m.Sigma, m.Amp)
}

func (m *Elastic) ParamNames() []string { return m.table.ParamNames() }
func (m *Elastic) SetParam(n string, v float64) error { return m.table.SetParam(n, v) }
func (m *Elastic) Param(n string) (float64, bool) { return m.table.Param(n) }

package gnn

// Snapshot is the opaque blob contract shared with the checkpoint store:
// a plain slice of per-layer weight matrices, with no framework-specific
// wrapping so it serializes identically regardless of who wrote it.
type Snapshot struct {
	LayerWeights [][][]float64
}

// PersistWeights captures the current layer weights as a Snapshot for the
// checkpoint store to write out.
func (e *Enhancer) PersistWeights() Snapshot {
	snap := Snapshot{LayerWeights: make([][][]float64, len(e.layers))}
	for i, l := range e.layers {
		snap.LayerWeights[i] = copyMatrix(l.Weight)
	}
	return snap
}

// LoadWeights replaces the enhancer's layer weights from a previously
// persisted Snapshot. The layer count must match what the enhancer was
// configured with; a mismatched snapshot is rejected rather than
// partially applied.
func (e *Enhancer) LoadWeights(snap Snapshot) error {
	if len(snap.LayerWeights) != len(e.layers) {
		return errLayerCountMismatch(len(e.layers), len(snap.LayerWeights))
	}
	for i, w := range snap.LayerWeights {
		e.layers[i].Weight = copyMatrix(w)
	}
	return nil
}

// Layers exposes the live layer weights for the trainer's backward pass.
// Callers must not retain references across concurrent Enhance calls.
func (e *Enhancer) Layers() []Layer { return e.layers }

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

type layerCountMismatchErr struct{ want, got int }

func (e *layerCountMismatchErr) Error() string {
	return "gnn: snapshot has a different layer count than the configured enhancer"
}

func errLayerCountMismatch(want, got int) error {
	return &layerCountMismatchErr{want: want, got: got}
}

package model

// State is the lifecycle state of a layer graph.
type State int

const (
	// NoModel means no trainable model exists yet.
	NoModel State = iota
	Empty
	Building
	OutputsSet
	Compiled
	Trained
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Building:
		return "building"
	case OutputsSet:
		return "outputs-set"
	case Compiled:
		return "compiled"
	case Trained:
		return "trained"
	}
	return "none"
}

// Side selects the input or output side of the model.
type Side string

const (
	Input  Side = "input"
	Output Side = "output"
)

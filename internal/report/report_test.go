package report

import (
	"bytes"
	"testing"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, []assembly.LayerSummary{
		{Name: "in", Kind: model.EntryLayer, Shape: "(None, 2)", IsInput: true},
		{Name: "out", Kind: model.DenseLayer, Shape: "(None, 1)", Inputs: []string{"in"}, Params: 3, IsOutput: true},
	})
	s := buf.String()
	assert.Contains(t, s, "Dense")
	assert.Contains(t, s, "(None, 2)")
	assert.Contains(t, s, "output")
}

func TestScores(t *testing.T) {
	var buf bytes.Buffer
	Scores(&buf, map[string]float64{"val_loss": 0.5, "loss": 0.25})
	s := buf.String()
	assert.Contains(t, s, "0.2500")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("loss")), bytes.Index(buf.Bytes(), []byte("val_loss")))
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	Stats(&buf, []data.Stats{{Column: "a", Count: 3, Mean: 2, Std: 1, Min: 1, Max: 3}})
	assert.Contains(t, buf.String(), "2.0000")
}

func TestHistory(t *testing.T) {
	h := framework.History{
		"loss":     {4, 3, 2, 1},
		"val_loss": {5, 4, 3, 2},
	}
	var buf bytes.Buffer
	require.NoError(t, History(&buf, h))
	s := buf.String()
	assert.Contains(t, s, "loss (4 epochs) trend -1.0000")
	assert.Contains(t, s, "val_loss")

	assert.Error(t, History(&buf, h, "accuracy"))
}

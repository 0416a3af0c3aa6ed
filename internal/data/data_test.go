package data

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/drakos74/free-model/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `a,b,c,y
1,2.5,3,0
2,3.5,4,1
3,4.5,5,0
4,5.5,6,1
5,6.5,7,0
`

func load(t *testing.T, csv string) *Dataset {
	d := New()
	require.NoError(t, d.Load(context.Background(), strings.NewReader(csv)))
	return d
}

func TestDataset_Load(t *testing.T) {
	d := load(t, sample)
	assert.True(t, d.Loaded())
	assert.Equal(t, []string{"a", "b", "c", "y"}, d.Columns())
	assert.Equal(t, 5, d.Rows())

	b, err := d.Column("b")
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 3.5, 4.5, 5.5, 6.5}, b)

	_, err = d.Column("z")
	assert.ErrorIs(t, err, UnknownColumnErr)

	err = New().Load(context.Background(), strings.NewReader("a,b\n1,x\n2,y\n"))
	assert.ErrorIs(t, err, NonNumericErr)
}

func TestDataset_Bind(t *testing.T) {

	type binding struct {
		side    model.Side
		layer   string
		columns []string
		err     error
	}

	type test struct {
		bindings []binding
		count    map[string]int
		inputs   map[string][]string
	}

	tests := map[string]test{
		"input-and-output": {
			bindings: []binding{
				{side: model.Input, layer: "in", columns: []string{"a", "b"}},
				{side: model.Input, layer: "in", columns: []string{"c"}},
				{side: model.Output, layer: "out", columns: []string{"y"}},
			},
			count:  map[string]int{"in": 3, "out": 1},
			inputs: map[string][]string{"in": {"a", "b", "c"}},
		},
		"same-column-both-sides": {
			bindings: []binding{
				{side: model.Input, layer: "in", columns: []string{"a"}},
				{side: model.Output, layer: "out", columns: []string{"a"}},
			},
			count:  map[string]int{"in": 1, "out": 1},
			inputs: map[string][]string{"in": {"a"}},
		},
		"bound-twice": {
			bindings: []binding{
				{side: model.Input, layer: "in", columns: []string{"a"}},
				{side: model.Input, layer: "other", columns: []string{"b", "a"}, err: BoundColumnErr},
			},
			count:  map[string]int{"in": 1},
			inputs: map[string][]string{"in": {"a"}},
		},
		"unknown-column": {
			bindings: []binding{
				{side: model.Input, layer: "in", columns: []string{"z"}, err: UnknownColumnErr},
			},
			count:  map[string]int{},
			inputs: map[string][]string{},
		},
		"unknown-side": {
			bindings: []binding{
				{side: "middle", layer: "in", columns: []string{"a"}, err: model.InvalidParamsErr},
			},
			count:  map[string]int{},
			inputs: map[string][]string{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			d := load(t, sample)
			for _, b := range tt.bindings {
				err := d.Bind(b.side, b.layer, b.columns...)
				if b.err != nil {
					assert.ErrorIs(t, err, b.err)
				} else {
					require.NoError(t, err)
				}
			}
			assert.Equal(t, tt.count, d.ColumnsPerLayer())
			assert.Equal(t, tt.inputs, d.InputColumns())
		})
	}

	t.Run("not-loaded", func(t *testing.T) {
		assert.ErrorIs(t, New().Bind(model.Input, "in", "a"), NoDataErr)
	})
}

func TestDataset_Unbind(t *testing.T) {
	d := load(t, sample)
	require.NoError(t, d.Bind(model.Input, "in", "a", "b"))
	require.NoError(t, d.Bind(model.Output, "out", "y"))
	require.NoError(t, d.Unbind(model.Input, "in"))
	assert.Equal(t, map[string]int{"out": 1}, d.ColumnsPerLayer())
	// the column can be bound again
	require.NoError(t, d.Bind(model.Input, "other", "a"))
	assert.Equal(t, map[string][]string{"out": {"y"}}, d.OutputColumns())
}

func TestDataset_Split(t *testing.T) {
	d := load(t, sample)
	require.NoError(t, d.Bind(model.Input, "in", "c", "a"))
	require.NoError(t, d.Bind(model.Output, "out", "y"))
	require.NoError(t, d.SetTestSize(0.4))

	x, err := d.InputTrainData()
	require.NoError(t, err)
	r, c := x["in"].Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 3.0, x["in"].At(0, 0))
	assert.Equal(t, 1.0, x["in"].At(0, 1))

	y, err := d.OutputTrainData()
	require.NoError(t, err)
	r, _ = y["out"].Dims()
	assert.Equal(t, 3, r)

	tx, err := d.InputTestData()
	require.NoError(t, err)
	r, _ = tx["in"].Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4.0, tx["in"].At(0, 1))

	ty, err := d.OutputTestData()
	require.NoError(t, err)
	assert.Equal(t, 1.0, ty["out"].At(0, 0))

	all, err := d.InputData()
	require.NoError(t, err)
	r, _ = all["in"].Dims()
	assert.Equal(t, 5, r)

	assert.ErrorIs(t, d.SetTestSize(1), model.InvalidParamsErr)

	require.NoError(t, d.SetTestSize(0))
	_, err = d.InputTestData()
	assert.ErrorIs(t, err, NoDataErr)

	require.NoError(t, d.Unbind(model.Output, "out"))
	_, err = d.OutputTrainData()
	assert.ErrorIs(t, err, NoDataErr)
}

func TestDataset_Stats(t *testing.T) {
	d := load(t, "a,b\n1,2\n2,\n3,4\n")
	stats := d.Stats()
	require.Equal(t, 2, len(stats))

	a := stats[0]
	assert.Equal(t, "a", a.Column)
	assert.Equal(t, 3, a.Count)
	assert.InDelta(t, 2.0, a.Mean, 1e-9)
	assert.InDelta(t, 1.0, a.Std, 1e-9)
	assert.Equal(t, 1.0, a.Min)
	assert.Equal(t, 3.0, a.Max)

	b := stats[1]
	assert.Equal(t, 2, b.Count)
	assert.InDelta(t, 3.0, b.Mean, 1e-9)
	assert.False(t, math.IsNaN(b.Std))
}

// Package data holds the uploaded tabular data and its binding to the model layers.
package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	NoDataErr        = errors.New("no data loaded")
	UnknownColumnErr = errors.New("unknown column")
	NonNumericErr    = errors.New("non numeric value")
	BoundColumnErr   = errors.New("column already bound")
)

// DefaultTestSize is the fraction of rows kept for evaluation.
const DefaultTestSize = 0.2

// Dataset is the uploaded file along with the columns bound to every layer.
type Dataset struct {
	columns  []string
	values   map[string][]float64
	rows     int
	testSize float64
	inputs   map[string][]string
	outputs  map[string][]string
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{
		columns:  make([]string, 0),
		values:   make(map[string][]float64),
		testSize: DefaultTestSize,
		inputs:   make(map[string][]string),
		outputs:  make(map[string][]string),
	}
}

// Load replaces the data with the given csv content, all bindings are dropped.
// Every column must be numeric, empty cells are read as NaN.
func (d *Dataset) Load(ctx context.Context, r io.ReadSeeker) error {
	missing := ""
	df, err := imports.LoadFromCSV(ctx, r, imports.CSVLoadOptions{
		InferDataTypes: true,
		NilValue:       &missing,
	})
	if err != nil {
		return fmt.Errorf("could not read csv: %w", err)
	}
	columns, values, err := numeric(df)
	if err != nil {
		return err
	}
	d.columns = columns
	d.values = values
	d.rows = df.NRows()
	d.inputs = make(map[string][]string)
	d.outputs = make(map[string][]string)
	log.Info().
		Int("rows", d.rows).
		Strs("columns", columns).
		Msg("data loaded")
	return nil
}

func numeric(df *dataframe.DataFrame) ([]string, map[string][]float64, error) {
	columns := make([]string, len(df.Series))
	values := make(map[string][]float64, len(df.Series))
	for i, s := range df.Series {
		name := s.Name()
		columns[i] = name
		vv := make([]float64, s.NRows())
		for row := range vv {
			switch v := s.Value(row).(type) {
			case nil:
				vv[row] = math.NaN()
			case float64:
				vv[row] = v
			case int64:
				vv[row] = float64(v)
			case string:
				if v == "" {
					vv[row] = math.NaN()
					continue
				}
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, nil, fmt.Errorf("column '%s' row %d value '%s': %w", name, row, v, NonNumericErr)
				}
				vv[row] = f
			default:
				return nil, nil, fmt.Errorf("column '%s' row %d value '%v': %w", name, row, v, NonNumericErr)
			}
		}
		values[name] = vv
	}
	return columns, values, nil
}

// Loaded returns true if data have been uploaded.
func (d *Dataset) Loaded() bool {
	return len(d.columns) > 0
}

// Columns returns the column names in file order.
func (d *Dataset) Columns() []string {
	return append([]string{}, d.columns...)
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int {
	return d.rows
}

// Column returns the values of the given column.
func (d *Dataset) Column(name string) ([]float64, error) {
	v, ok := d.values[name]
	if !ok {
		return nil, fmt.Errorf("column '%s': %w", name, UnknownColumnErr)
	}
	return v, nil
}

// SetTestSize sets the fraction of rows kept for evaluation.
func (d *Dataset) SetTestSize(size float64) error {
	if size < 0 || size >= 1 {
		return fmt.Errorf("test size must be in [0,1) '%v': %w", size, model.InvalidParamsErr)
	}
	d.testSize = size
	return nil
}

func (d *Dataset) side(side model.Side) (map[string][]string, error) {
	switch side {
	case model.Input:
		return d.inputs, nil
	case model.Output:
		return d.outputs, nil
	}
	return nil, fmt.Errorf("unknown side '%s': %w", side, model.InvalidParamsErr)
}

// Bind appends the given columns to the data of a layer.
// A column can be bound only once per side.
func (d *Dataset) Bind(side model.Side, layer string, columns ...string) error {
	if !d.Loaded() {
		return NoDataErr
	}
	bindings, err := d.side(side)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}
	bound := make(map[string]string)
	for l, cc := range bindings {
		for _, c := range cc {
			bound[c] = l
		}
	}
	for _, c := range columns {
		if _, ok := d.values[c]; !ok {
			return fmt.Errorf("column '%s': %w", c, UnknownColumnErr)
		}
		if l, ok := bound[c]; ok {
			return fmt.Errorf("column '%s' is bound to '%s': %w", c, l, BoundColumnErr)
		}
		bound[c] = layer
	}
	bindings[layer] = append(bindings[layer], columns...)
	return nil
}

// Unbind removes all columns of the given layer.
func (d *Dataset) Unbind(side model.Side, layer string) error {
	bindings, err := d.side(side)
	if err != nil {
		return err
	}
	delete(bindings, layer)
	return nil
}

// ColumnsPerLayer returns how many columns are bound to every layer.
func (d *Dataset) ColumnsPerLayer() map[string]int {
	count := make(map[string]int, len(d.inputs)+len(d.outputs))
	for l, cc := range d.inputs {
		count[l] += len(cc)
	}
	for l, cc := range d.outputs {
		count[l] += len(cc)
	}
	return count
}

func clone(bindings map[string][]string) map[string][]string {
	c := make(map[string][]string, len(bindings))
	for l, cc := range bindings {
		c[l] = append([]string{}, cc...)
	}
	return c
}

// InputColumns returns the columns bound to every input layer.
func (d *Dataset) InputColumns() map[string][]string {
	return clone(d.inputs)
}

// OutputColumns returns the columns bound to every output layer.
func (d *Dataset) OutputColumns() map[string][]string {
	return clone(d.outputs)
}

// split returns the row index separating the train from the test rows.
func (d *Dataset) split() int {
	return d.rows - int(float64(d.rows)*d.testSize)
}

func (d *Dataset) batch(bindings map[string][]string, from, to int) (framework.Batch, error) {
	if !d.Loaded() {
		return nil, NoDataErr
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no columns bound: %w", NoDataErr)
	}
	b := make(framework.Batch, len(bindings))
	for layer, columns := range bindings {
		if to <= from {
			return nil, fmt.Errorf("no rows in [%d,%d): %w", from, to, NoDataErr)
		}
		m := mat.NewDense(to-from, len(columns), nil)
		for j, c := range columns {
			m.SetCol(j, d.values[c][from:to])
		}
		b[layer] = m
	}
	return b, nil
}

// InputTrainData returns the training rows of every input layer.
func (d *Dataset) InputTrainData() (framework.Batch, error) {
	return d.batch(d.inputs, 0, d.split())
}

// OutputTrainData returns the training rows of every output layer.
func (d *Dataset) OutputTrainData() (framework.Batch, error) {
	return d.batch(d.outputs, 0, d.split())
}

// InputTestData returns the test rows of every input layer.
func (d *Dataset) InputTestData() (framework.Batch, error) {
	return d.batch(d.inputs, d.split(), d.rows)
}

// OutputTestData returns the test rows of every output layer.
func (d *Dataset) OutputTestData() (framework.Batch, error) {
	return d.batch(d.outputs, d.split(), d.rows)
}

// InputData returns all rows of every input layer.
func (d *Dataset) InputData() (framework.Batch, error) {
	return d.batch(d.inputs, 0, d.rows)
}

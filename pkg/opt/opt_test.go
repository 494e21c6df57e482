package opt

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundValidity(t *testing.T) {
	assert.True(t, Bound{Min: 0, Max: 1}.Valid())
	assert.False(t, Bound{Min: 1, Max: 1}.Valid())
	assert.False(t, Bound{Min: 2, Max: 1}.Valid())
	assert.False(t, Bound{Min: math.NaN(), Max: 1}.Valid())

	assert.Error(t, ValidateBounds(nil))
	assert.Error(t, ValidateBounds([]Bound{{Min: 0, Max: 1}, {Min: 3, Max: 2}}))
	assert.NoError(t, ValidateBounds([]Bound{{Min: -1, Max: 1}}))
}

func TestInBounds(t *testing.T) {
	bounds := []Bound{{Min: 0, Max: 1}, {Min: -5, Max: 5}}
	assert.True(t, InBounds([]float64{0.5, 0}, bounds))
	assert.True(t, InBounds([]float64{0, -5}, bounds))
	assert.False(t, InBounds([]float64{1.5, 0}, bounds))
	assert.False(t, InBounds([]float64{0.5}, bounds))
	assert.False(t, InBounds([]float64{0.5, 0, 0}, bounds))
}

func TestSanitizeFx(t *testing.T) {
	assert.Equal(t, 1.5, SanitizeFx(1.5))
	assert.True(t, math.IsInf(SanitizeFx(math.NaN()), 1))
	assert.True(t, math.IsInf(SanitizeFx(math.Inf(-1)), 1))
	assert.True(t, math.IsInf(SanitizeFx(math.Inf(1)), 1))
}

func TestFormatParseFx(t *testing.T) {
	for _, v := range []float64{0, 1.5, -2.25e-8, math.MaxFloat64} {
		got, err := ParseFx(FormatFx(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	inf, err := ParseFx(FormatFx(math.Inf(1)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(inf, 1))

	ninf, err := ParseFx(FormatFx(math.Inf(-1)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(ninf, -1))

	nan, err := ParseFx(FormatFx(math.NaN()))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan))

	_, err = ParseFx("")
	assert.Error(t, err)
	_, err = ParseFx("wat")
	assert.Error(t, err)
}

// recordingControl captures reported iterations without a manager.
type recordingControl struct {
	reports int
	stopAt  int
	lastFx  float64
}

func (c *recordingControl) Report(nIter, iFcalls int, x []float64, fx float64) error {
	c.reports++
	c.lastFx = fx
	if c.stopAt > 0 && c.reports >= c.stopAt {
		return ErrStopRequested
	}
	return nil
}

func (c *recordingControl) Stopped() bool { return false }
func (c *recordingControl) OptID() uint32 { return 1 }

func TestRandomSearchStaysInBounds(t *testing.T) {
	bounds := []Bound{{Min: -2, Max: 2}, {Min: 10, Max: 11}}
	var outside bool
	task := TaskFunc(func(x []float64) float64 {
		if !InBounds(x, bounds) {
			outside = true
		}
		return x[0] * x[0]
	})

	rs := NewRandomSearch(3, 50)
	ctl := &recordingControl{}
	res := rs.Minimize(ctl, task, []float64{0, 10.5}, bounds)

	assert.False(t, outside, "random search sampled outside bounds")
	assert.Equal(t, 50, ctl.reports)
	assert.True(t, res.Success)
	assert.Contains(t, res.EndCond, "iteration budget")
}

func TestRandomSearchStopsOnOrder(t *testing.T) {
	rs := NewRandomSearch(3, 0)
	ctl := &recordingControl{stopAt: 10}
	res := rs.Minimize(ctl, TaskFunc(func(x []float64) float64 { return 1 }), []float64{0.5}, []Bound{{Min: 0, Max: 1}})
	assert.Equal(t, 10, ctl.reports)
	assert.Equal(t, "stopped by manager", res.EndCond)
}

func TestRandomSearchSaveRestore(t *testing.T) {
	bounds := []Bound{{Min: 0, Max: 1}}
	path := filepath.Join(t.TempDir(), "state.json")

	a := NewRandomSearch(9, 0)
	ctl := &recordingControl{stopAt: 20}
	a.Minimize(ctl, TaskFunc(sphere1), []float64{0.5}, bounds)
	require.NoError(t, a.SaveState(path))

	restored, err := RestoreRandomSearch(path)
	require.NoError(t, err)
	b := restored.(*RandomSearch)

	// Both continue with identical draws.
	assert.Equal(t, a.sample(bounds), b.sample(bounds))
	assert.Equal(t, a.nIter, b.nIter)
	assert.Equal(t, a.bestFx, b.bestFx)
}

func sphere1(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return s
}

func TestRestoreRandomSearchMissingFile(t *testing.T) {
	_, err := RestoreRandomSearch(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

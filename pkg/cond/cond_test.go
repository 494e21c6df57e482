package cond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constLeaf is a fixed-value predicate used to exercise the tree.
type constLeaf struct {
	value bool
	name  string
	calls int
}

func (c *constLeaf) Evaluate(struct{}) bool {
	c.calls++
	return c.value
}

func (c *constLeaf) String() string { return c.name }

func leafTrue(name string) *constLeaf  { return &constLeaf{value: true, name: name} }
func leafFalse(name string) *constLeaf { return &constLeaf{value: false, name: name} }

func TestEvaluateTable(t *testing.T) {
	cases := []struct {
		name string
		tree func() *Node[struct{}]
		want bool
	}{
		{"true", func() *Node[struct{}] { return New[struct{}](leafTrue("T()")) }, true},
		{"and_tt", func() *Node[struct{}] { return New[struct{}](leafTrue("T()")).And(New[struct{}](leafTrue("T()"))) }, true},
		{"and_tf", func() *Node[struct{}] { return New[struct{}](leafTrue("T()")).And(New[struct{}](leafFalse("F()"))) }, false},
		{"or_ff", func() *Node[struct{}] { return New[struct{}](leafFalse("F()")).Or(New[struct{}](leafFalse("F()"))) }, false},
		{"or_ft", func() *Node[struct{}] { return New[struct{}](leafFalse("F()")).Or(New[struct{}](leafTrue("T()"))) }, true},
		{"nested", func() *Node[struct{}] {
			return New[struct{}](leafFalse("F()")).Or(
				New[struct{}](leafFalse("F()")).And(New[struct{}](leafTrue("T()")))).Or(
				New[struct{}](leafTrue("T()")).And(
					New[struct{}](leafTrue("T()")).Or(New[struct{}](leafFalse("F()")))))
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tree().Evaluate(struct{}{}))
		})
	}
}

// TestNoShortCircuit verifies the observable contract that both sides
// of every combinator are evaluated so their memoized results exist.
func TestNoShortCircuit(t *testing.T) {
	f := leafFalse("FalseHunter()")
	t1 := leafTrue("TrueHunter()")
	t2 := leafTrue("TrueHunter()")
	tree := New[struct{}](f).Or(New[struct{}](t1).And(New[struct{}](t2)))

	require.True(t, tree.Evaluate(struct{}{}))

	for _, leaf := range tree.LeafNodes() {
		_, ok := leaf.LastResult()
		assert.True(t, ok, "leaf %s has no memoized result", leaf)
	}
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 1, t1.calls)
	assert.Equal(t, 1, t2.calls)

	// The true branch must not have suppressed evaluation of the
	// second operand either way around.
	tree2 := New[struct{}](leafTrue("T()")).Or(New[struct{}](t2))
	tree2.Evaluate(struct{}{})
	assert.Equal(t, 2, t2.calls)
}

func TestResetClearsAllNodes(t *testing.T) {
	tree := New[struct{}](leafTrue("A()")).And(
		New[struct{}](leafFalse("B()")).Or(New[struct{}](leafTrue("C()"))))
	tree.Evaluate(struct{}{})

	_, ok := tree.LastResult()
	require.True(t, ok)

	tree.Reset()
	_, ok = tree.LastResult()
	assert.False(t, ok)
	for _, leaf := range tree.LeafNodes() {
		_, ok := leaf.LastResult()
		assert.False(t, ok)
	}
}

func TestLeavesFlattenLeftToRight(t *testing.T) {
	a := leafTrue("A()")
	b := leafFalse("B()")
	c := leafTrue("C()")
	d := leafFalse("D()")
	tree := New[struct{}](a).Or(New[struct{}](b).And(New[struct{}](c))).And(New[struct{}](d))

	leaves := tree.Leaves()
	require.Len(t, leaves, 4)
	assert.Equal(t, "A()", leaves[0].String())
	assert.Equal(t, "B()", leaves[1].String())
	assert.Equal(t, "C()", leaves[2].String())
	assert.Equal(t, "D()", leaves[3].String())
}

func TestStringRendering(t *testing.T) {
	tree := New[struct{}](leafTrue("A()")).Or(New[struct{}](leafFalse("B()")))
	assert.Equal(t, "[A() | B()]", tree.String())

	and := New[struct{}](leafTrue("A()")).And(New[struct{}](leafFalse("B()")))
	assert.Equal(t, "[A() & B()]", and.String())

	nested := tree.And(New[struct{}](leafTrue("C()")))
	assert.Equal(t, "[[A() | B()] & C()]", nested.String())
}

func TestStringWithResult(t *testing.T) {
	tree := New[struct{}](leafTrue("A()")).And(New[struct{}](leafFalse("B()")))
	assert.Equal(t, "[A() = unset & B() = unset]", tree.StringWithResult())

	tree.Evaluate(struct{}{})
	assert.Equal(t, "[A() = true & B() = false]", tree.StringWithResult())

	tree.Reset()
	assert.Equal(t, "[A() = unset & B() = unset]", tree.StringWithResult())
}

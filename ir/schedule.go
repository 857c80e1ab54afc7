package ir

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuchBlock  = errors.New("no such block")
	ErrNoSuchLoop   = errors.New("loop index out of range")
	ErrBadFactors   = errors.New("split factors do not cover loop extent")
	ErrBadOrder     = errors.New("reorder is not a permutation of the block's loops")
	ErrNotInlinable = errors.New("block cannot be inlined")
)

// Split replaces loop idx of the named block by len(factors) nested loops
// whose extents are factors, outermost first. The product of factors must
// equal the loop's extent. New loops are serial and keep the reduce flag.
func (m *Module) Split(block string, idx int, factors []int) error {
	b := m.Block(block)
	if b == nil {
		return fmt.Errorf("split %s: %w", block, ErrNoSuchBlock)
	}
	if idx < 0 || idx >= len(b.Loops) {
		return fmt.Errorf("split %s loop %d: %w", block, idx, ErrNoSuchLoop)
	}
	orig := b.Loops[idx]
	prod := 1
	for _, f := range factors {
		if f <= 0 {
			return fmt.Errorf("split %s.%s by %v: %w", block, orig.Var, factors, ErrBadFactors)
		}
		prod *= f
	}
	if len(factors) == 0 || prod != orig.Extent {
		return fmt.Errorf("split %s.%s (extent %d) by %v: %w", block, orig.Var, orig.Extent, factors, ErrBadFactors)
	}

	pieces := make([]Loop, len(factors))
	for i, f := range factors {
		pieces[i] = Loop{
			Var:    fmt.Sprintf("%s_%d", orig.Var, i),
			Extent: f,
			Kind:   Serial,
			Reduce: orig.Reduce,
		}
	}
	loops := make([]Loop, 0, len(b.Loops)+len(factors)-1)
	loops = append(loops, b.Loops[:idx]...)
	loops = append(loops, pieces...)
	loops = append(loops, b.Loops[idx+1:]...)
	b.Loops = loops
	return nil
}

// Reorder permutes the loops of the named block so that new position i
// holds old loop order[i].
func (m *Module) Reorder(block string, order []int) error {
	b := m.Block(block)
	if b == nil {
		return fmt.Errorf("reorder %s: %w", block, ErrNoSuchBlock)
	}
	if len(order) != len(b.Loops) {
		return fmt.Errorf("reorder %s by %v: %w", block, order, ErrBadOrder)
	}
	seen := make([]bool, len(order))
	loops := make([]Loop, len(order))
	for i, o := range order {
		if o < 0 || o >= len(order) || seen[o] {
			return fmt.Errorf("reorder %s by %v: %w", block, order, ErrBadOrder)
		}
		seen[o] = true
		loops[i] = b.Loops[o]
	}
	b.Loops = loops
	return nil
}

// Annotate sets the execution kind of loop idx of the named block.
func (m *Module) Annotate(block string, idx int, kind LoopKind) error {
	b := m.Block(block)
	if b == nil {
		return fmt.Errorf("annotate %s: %w", block, ErrNoSuchBlock)
	}
	if idx < 0 || idx >= len(b.Loops) {
		return fmt.Errorf("annotate %s loop %d: %w", block, idx, ErrNoSuchLoop)
	}
	b.Loops[idx].Kind = kind
	return nil
}

// ComputeInline removes the named block and recomputes its value inside
// every consumer. The block must be a non-output, non-reduction stage with
// at least one consumer.
func (m *Module) ComputeInline(block string) error {
	pos := -1
	for i, b := range m.Blocks {
		if b.Name == block {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("inline %s: %w", block, ErrNoSuchBlock)
	}
	b := m.Blocks[pos]
	if b.Output || b.IsReduction() {
		return fmt.Errorf("inline %s: output or reduction stage: %w", block, ErrNotInlinable)
	}
	consumers := m.Consumers(b.Writes)
	if len(consumers) == 0 {
		return fmt.Errorf("inline %s: no consumers: %w", block, ErrNotInlinable)
	}

	for _, c := range consumers {
		reads := make([]string, 0, len(c.Reads)+len(b.Reads))
		for _, r := range c.Reads {
			if r == b.Writes {
				for _, in := range b.Reads {
					reads = appendUnique(reads, in)
				}
				continue
			}
			reads = appendUnique(reads, r)
		}
		c.Reads = reads
		c.Inlined = append(c.Inlined, b.Name)
		c.Inlined = append(c.Inlined, b.Inlined...)
	}
	m.Blocks = append(m.Blocks[:pos:pos], m.Blocks[pos+1:]...)
	return nil
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

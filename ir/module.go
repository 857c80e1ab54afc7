package ir

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// LoopKind describes how a loop is executed after lowering.
type LoopKind string

const (
	Serial     LoopKind = "serial"
	Parallel   LoopKind = "parallel"
	Vectorized LoopKind = "vectorized"
	Unrolled   LoopKind = "unrolled"
	GPUBlock   LoopKind = "gpu.block"
	GPUThread  LoopKind = "gpu.thread"
)

// Loop is one level of a block's loop nest, outermost first.
type Loop struct {
	Var    string   `json:"var" yaml:"var"`
	Extent int      `json:"extent" yaml:"extent"`
	Kind   LoopKind `json:"kind" yaml:"kind"`
	Reduce bool     `json:"reduce,omitempty" yaml:"reduce,omitempty"`
}

// Block is a compute stage: a loop nest that reads some buffers and writes one.
type Block struct {
	Name      string   `json:"name" yaml:"name"`
	Loops     []Loop   `json:"loops,omitempty" yaml:"loops,omitempty"`
	Reads     []string `json:"reads,omitempty" yaml:"reads,omitempty"`
	Writes    string   `json:"writes" yaml:"writes"`
	Output    bool     `json:"output,omitempty" yaml:"output,omitempty"`
	TileLevel int      `json:"tile_level,omitempty" yaml:"tile_level,omitempty"`
	Inlined   []string `json:"inlined,omitempty" yaml:"inlined,omitempty"` // producer blocks computed in place
}

// Module is a program snapshot: an ordered list of blocks in dependency order.
type Module struct {
	Name   string   `json:"name" yaml:"name"`
	Blocks []*Block `json:"blocks" yaml:"blocks"`
}

// IsReduction reports whether any loop of the block is a reduction axis.
func (b *Block) IsReduction() bool {
	for _, l := range b.Loops {
		if l.Reduce {
			return true
		}
	}
	return false
}

// Iterations returns the number of points in the block's iteration space.
func (b *Block) Iterations() int64 {
	n := int64(1)
	for _, l := range b.Loops {
		n *= int64(l.Extent)
	}
	return n
}

// HasLoopKind reports whether some loop of the block is annotated with kind.
func (b *Block) HasLoopKind(kind LoopKind) bool {
	for _, l := range b.Loops {
		if l.Kind == kind {
			return true
		}
	}
	return false
}

// AllSerial reports whether no loop of the block carries an annotation yet.
func (b *Block) AllSerial() bool {
	for _, l := range b.Loops {
		if l.Kind != Serial {
			return false
		}
	}
	return true
}

func (b *Block) clone() *Block {
	c := *b
	c.Loops = cloneSlice(b.Loops)
	c.Reads = cloneSlice(b.Reads)
	c.Inlined = cloneSlice(b.Inlined)
	return &c
}

func (b *Block) equal(o *Block) bool {
	if b.Name != o.Name || b.Writes != o.Writes || b.Output != o.Output || b.TileLevel != o.TileLevel {
		return false
	}
	if len(b.Loops) != len(o.Loops) {
		return false
	}
	for i := range b.Loops {
		if b.Loops[i] != o.Loops[i] {
			return false
		}
	}
	return equalStrings(b.Reads, o.Reads) && equalStrings(b.Inlined, o.Inlined)
}

// Clone returns a deep copy; mutating the copy never affects m.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	c := &Module{Name: m.Name, Blocks: make([]*Block, len(m.Blocks))}
	for i, b := range m.Blocks {
		c.Blocks[i] = b.clone()
	}
	return c
}

// Equal compares two modules structurally.
func (m *Module) Equal(o *Module) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Name != o.Name || len(m.Blocks) != len(o.Blocks) {
		return false
	}
	for i := range m.Blocks {
		if !m.Blocks[i].equal(o.Blocks[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns a canonical hash of the module's structure.
// Structurally equal modules share a fingerprint.
func (m *Module) Fingerprint() string {
	data, err := json.Marshal(m)
	if err != nil {
		// Module only holds plain values, so encoding cannot fail.
		panic(fmt.Sprintf("ir: fingerprint module %q: %v", m.Name, err))
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Block returns the block with the given name, or nil.
func (m *Module) Block(name string) *Block {
	for _, b := range m.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Consumers returns the blocks reading buffer, in module order.
func (m *Module) Consumers(buffer string) []*Block {
	var out []*Block
	for _, b := range m.Blocks {
		for _, r := range b.Reads {
			if r == buffer {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// Producer returns the block writing buffer, or nil for module inputs.
func (m *Module) Producer(buffer string) *Block {
	for _, b := range m.Blocks {
		if b.Writes == buffer {
			return b
		}
	}
	return nil
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package workload

import (
	"fmt"
	"os"
	"sort"

	"github.com/snow-ghost/autotune/ir"
	"gopkg.in/yaml.v3"
)

func spatial(v string, extent int) ir.Loop {
	return ir.Loop{Var: v, Extent: extent, Kind: ir.Serial}
}

func reduce(v string, extent int) ir.Loop {
	return ir.Loop{Var: v, Extent: extent, Kind: ir.Serial, Reduce: true}
}

// MatMul returns C[m,n] = sum_k A[m,k] * B[k,n].
func MatMul(m, n, k int) *ir.Module {
	return &ir.Module{
		Name: "matmul",
		Blocks: []*ir.Block{
			{
				Name:   "matmul",
				Loops:  []ir.Loop{spatial("i", m), spatial("j", n), reduce("k", k)},
				Reads:  []string{"A", "B"},
				Writes: "C",
				Output: true,
			},
		},
	}
}

// MatMulBiasReLU returns out = relu(A x B + bias), three stages before fusion.
func MatMulBiasReLU(m, n, k int) *ir.Module {
	return &ir.Module{
		Name: "matmul_bias_relu",
		Blocks: []*ir.Block{
			{
				Name:   "matmul",
				Loops:  []ir.Loop{spatial("i", m), spatial("j", n), reduce("k", k)},
				Reads:  []string{"A", "B"},
				Writes: "C",
			},
			{
				Name:   "bias_add",
				Loops:  []ir.Loop{spatial("i", m), spatial("j", n)},
				Reads:  []string{"C", "bias"},
				Writes: "D",
			},
			{
				Name:   "relu",
				Loops:  []ir.Loop{spatial("i", m), spatial("j", n)},
				Reads:  []string{"D"},
				Writes: "out",
				Output: true,
			},
		},
	}
}

// ReduceSum returns out[r] = sum_c X[r,c].
func ReduceSum(rows, cols int) *ir.Module {
	return &ir.Module{
		Name: "reduce_sum",
		Blocks: []*ir.Block{
			{
				Name:   "reduce_sum",
				Loops:  []ir.Loop{spatial("r", rows), reduce("c", cols)},
				Reads:  []string{"X"},
				Writes: "out",
				Output: true,
			},
		},
	}
}

// AddReLU returns out = relu(X + Y), an elementwise chain.
func AddReLU(rows, cols int) *ir.Module {
	return &ir.Module{
		Name: "add_relu",
		Blocks: []*ir.Block{
			{
				Name:   "add",
				Loops:  []ir.Loop{spatial("i", rows), spatial("j", cols)},
				Reads:  []string{"X", "Y"},
				Writes: "T",
			},
			{
				Name:   "relu",
				Loops:  []ir.Loop{spatial("i", rows), spatial("j", cols)},
				Reads:  []string{"T"},
				Writes: "out",
				Output: true,
			},
		},
	}
}

var builtins = map[string]func() *ir.Module{
	"matmul":           func() *ir.Module { return MatMul(64, 64, 64) },
	"matmul_bias_relu": func() *ir.Module { return MatMulBiasReLU(64, 64, 64) },
	"reduce_sum":       func() *ir.Module { return ReduceSum(128, 256) },
	"add_relu":         func() *ir.Module { return AddReLU(128, 128) },
}

// Names lists the built-in workloads in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a fresh copy of a built-in workload.
func Get(name string) (*ir.Module, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q", name)
	}
	return build(), nil
}

// Load reads a module description from a YAML file.
func Load(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML module description and checks it is well formed.
func Parse(data []byte) (*ir.Module, error) {
	var m ir.Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse workload YAML: %w", err)
	}
	if len(m.Blocks) == 0 {
		return nil, fmt.Errorf("workload %q has no blocks", m.Name)
	}
	seen := make(map[string]bool)
	for _, b := range m.Blocks {
		if b == nil {
			return nil, fmt.Errorf("workload %q: empty block entry", m.Name)
		}
		if b.Name == "" || b.Writes == "" {
			return nil, fmt.Errorf("workload %q: every block needs a name and an output buffer", m.Name)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("workload %q: duplicate block %q", m.Name, b.Name)
		}
		seen[b.Name] = true
		for i := range b.Loops {
			if b.Loops[i].Extent <= 0 {
				return nil, fmt.Errorf("workload %q: block %q loop %q has non-positive extent", m.Name, b.Name, b.Loops[i].Var)
			}
			if b.Loops[i].Kind == "" {
				b.Loops[i].Kind = ir.Serial
			}
		}
	}
	return &m, nil
}

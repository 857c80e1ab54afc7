package core

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/autotune/ir"
)

// Arch is a hardware architecture family.
type Arch string

const (
	ArchX86   Arch = "x86"
	ArchARM   Arch = "arm"
	ArchNVGPU Arch = "nvgpu"
)

// Target describes the hardware a schedule is tuned for. It is read-only
// once handed to a TuneContext.
type Target struct {
	Name string `json:"name" yaml:"name"`
	Arch Arch   `json:"arch" yaml:"arch"`
	// Cores counts CPU cores, or streaming multiprocessors on a GPU.
	Cores int `json:"cores" yaml:"cores"`
	// VectorLanes is the number of fp32 lanes per SIMD register.
	VectorLanes        int      `json:"vector_lanes,omitempty" yaml:"vector_lanes,omitempty"`
	MaxThreadsPerBlock int      `json:"max_threads_per_block,omitempty" yaml:"max_threads_per_block,omitempty"`
	Features           []string `json:"features,omitempty" yaml:"features,omitempty"`
}

// IsGPU reports whether the target is a GPU.
func (t Target) IsGPU() bool {
	return t.Arch == ArchNVGPU
}

// HasFeature reports whether the target advertises the given capability flag.
func (t Target) HasFeature(feature string) bool {
	for _, f := range t.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func DefaultHostTarget() Target {
	return Target{Name: "host", Arch: ArchX86, Cores: 8, VectorLanes: 8, Features: []string{"avx2", "fma"}}
}

func DefaultARMTarget() Target {
	return Target{Name: "arm", Arch: ArchARM, Cores: 8, VectorLanes: 4, Features: []string{"neon"}}
}

func DefaultNVGPUTarget() Target {
	return Target{Name: "nvgpu", Arch: ArchNVGPU, Cores: 80, MaxThreadsPerBlock: 1024, Features: []string{"sm_70"}}
}

// TargetByName resolves a target preset by its short name.
func TargetByName(name string) (Target, error) {
	switch strings.ToLower(name) {
	case "cpu", "host", "x86":
		return DefaultHostTarget(), nil
	case "arm":
		return DefaultARMTarget(), nil
	case "gpu", "nvgpu", "cuda":
		return DefaultNVGPUTarget(), nil
	default:
		return Target{}, fmt.Errorf("unknown target %q", name)
	}
}

// TuneContext bundles what a tuning task is about: the hardware target and
// the baseline program. It must outlive every search space built from it.
type TuneContext struct {
	Target   Target
	Baseline *ir.Module
}

func NewTuneContext(target Target, baseline *ir.Module) *TuneContext {
	return &TuneContext{Target: target, Baseline: baseline}
}

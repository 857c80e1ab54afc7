package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snow-ghost/autotune/core"
	"github.com/snow-ghost/autotune/ir"
	"github.com/snow-ghost/autotune/search"
)

// Record is one tuned schedule of a workload for a target.
type Record struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	// Workload is the baseline program name; WorkloadKey its fingerprint.
	Workload      string     `json:"workload"`
	WorkloadKey   string     `json:"workload_key"`
	Target        string     `json:"target"`
	PredictedCost float64    `json:"predicted_cost"`
	Trace         []string   `json:"trace"`
	Program       *ir.Module `json:"program"`
	// SHA256 is the fingerprint of Program when the record was written.
	SHA256    string `json:"sha256"`
	CreatedAt string `json:"created_at"`
}

// NewRecord captures st as a tuned schedule of baseline.
func NewRecord(runID string, baseline *ir.Module, target core.Target, st *search.State) *Record {
	return &Record{
		ID:            uuid.NewString(),
		RunID:         runID,
		Workload:      baseline.Name,
		WorkloadKey:   baseline.Fingerprint(),
		Target:        target.Name,
		PredictedCost: st.PredictedCost,
		Trace:         append([]string{}, st.Trace...),
		Program:       st.Program.Clone(),
		SHA256:        st.Program.Fingerprint(),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrCorrupt marks a record whose program no longer matches its digest.
var ErrCorrupt = errors.New("record program does not match its digest")

// Validate checks required fields and the program digest.
func (r *Record) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("record ID is required")
	case r.WorkloadKey == "":
		return fmt.Errorf("record workload key is required")
	case r.Target == "":
		return fmt.Errorf("record target is required")
	case r.Program == nil:
		return fmt.Errorf("record program is required")
	case r.PredictedCost < 0:
		return fmt.Errorf("record %s is not evaluated", r.ID)
	}
	if r.Program.Fingerprint() != r.SHA256 {
		return fmt.Errorf("%w: %s", ErrCorrupt, r.ID)
	}
	return nil
}

// TaskKey identifies the tuning task a record belongs to.
func (r *Record) TaskKey() string {
	return TaskKey(r.WorkloadKey, r.Target)
}

func TaskKey(workloadKey, target string) string {
	return workloadKey + "@" + target
}

func (r *Record) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func FromJSON(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// taskDir is the directory holding every record of the record's task.
func (r *Record) taskDir(baseDir string) string {
	key := r.WorkloadKey
	if len(key) > 16 {
		key = key[:16]
	}
	name := fmt.Sprintf("%s-%s-%s", pathSegment(r.Workload), pathSegment(key), pathSegment(r.Target))
	return filepath.Join(baseDir, name)
}

func (r *Record) path(baseDir string) string {
	return filepath.Join(r.taskDir(baseDir), pathSegment(r.ID)+".json")
}

// pathSegment maps s to a single file name component. Characters outside
// [A-Za-z0-9_.-] become underscores.
func pathSegment(s string) string {
	seg := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '.' || r == '-':
			return r
		}
		return '_'
	}, s)
	if seg == "" || seg == "." || seg == ".." {
		return "_"
	}
	return seg
}

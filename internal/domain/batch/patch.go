package batch

import "encoding/json"

// Patch wire operation names.
const (
	patchOpAdd       = "add"
	patchOpSet       = "set"
	patchOpReplace   = "replace"
	patchOpRemove    = "remove"
	patchOpIncrement = "incr"
)

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// PatchSpec is an ordered list of partial document updates.
// The zero value is ready to use.
type PatchSpec struct {
	ops []patchOp
}

// AppendAdd appends an "add" operation for the given path.
func (s *PatchSpec) AppendAdd(path string, value any) {
	s.ops = append(s.ops, patchOp{Op: patchOpAdd, Path: path, Value: value})
}

// AppendSet appends a "set" operation for the given path.
func (s *PatchSpec) AppendSet(path string, value any) {
	s.ops = append(s.ops, patchOp{Op: patchOpSet, Path: path, Value: value})
}

// AppendReplace appends a "replace" operation for an existing path.
func (s *PatchSpec) AppendReplace(path string, value any) {
	s.ops = append(s.ops, patchOp{Op: patchOpReplace, Path: path, Value: value})
}

// AppendRemove appends a "remove" operation for the given path.
func (s *PatchSpec) AppendRemove(path string) {
	s.ops = append(s.ops, patchOp{Op: patchOpRemove, Path: path})
}

// AppendIncrement appends an "incr" operation adding delta to a numeric path.
func (s *PatchSpec) AppendIncrement(path string, delta float64) {
	s.ops = append(s.ops, patchOp{Op: patchOpIncrement, Path: path, Value: delta})
}

// Len returns the number of patch operations.
func (s PatchSpec) Len() int { return len(s.ops) }

// MarshalJSON renders the Cosmos patch document: {"operations":[...]}.
func (s PatchSpec) MarshalJSON() ([]byte, error) {
	ops := s.ops
	if ops == nil {
		ops = []patchOp{}
	}
	return json.Marshal(struct {
		Operations []patchOp `json:"operations"`
	}{Operations: ops})
}

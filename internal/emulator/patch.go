package emulator

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// patchDocument mirrors the request shape produced by the client-side
// patch builder.
type patchDocument struct {
	Operations []patchOperation `json:"operations"`
}

type patchOperation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// applyPatch applies a patch document to a stored body and returns the
// new body. Paths address nested object members only ("/a/b"). On any
// error the stored body stays untouched.
func applyPatch(body, doc json.RawMessage) (json.RawMessage, error) {
	var spec patchDocument
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, errors.Wrap(err, "decode patch document")
	}
	if len(spec.Operations) == 0 {
		return nil, errors.New("patch document has no operations")
	}

	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, errors.Wrap(err, "decode stored item")
	}

	for _, op := range spec.Operations {
		if err := applyPatchOp(root, op); err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(root)
	if err != nil {
		return nil, errors.Wrap(err, "encode patched item")
	}
	return out, nil
}

func applyPatchOp(root map[string]any, op patchOperation) error {
	parent, leaf, err := walkPath(root, op.Path)
	if err != nil {
		return err
	}

	switch op.Op {
	case "add", "set":
		v, err := decodeValue(op)
		if err != nil {
			return err
		}
		parent[leaf] = v

	case "replace":
		if _, ok := parent[leaf]; !ok {
			return errors.Newf("replace %s: no such member", op.Path)
		}
		v, err := decodeValue(op)
		if err != nil {
			return err
		}
		parent[leaf] = v

	case "remove":
		if _, ok := parent[leaf]; !ok {
			return errors.Newf("remove %s: no such member", op.Path)
		}
		delete(parent, leaf)

	case "incr":
		cur, ok := parent[leaf].(float64)
		if !ok {
			return errors.Newf("incr %s: member is not a number", op.Path)
		}
		var delta float64
		if err := json.Unmarshal(op.Value, &delta); err != nil {
			return errors.Wrapf(err, "decode delta for %s", op.Path)
		}
		parent[leaf] = cur + delta

	default:
		return errors.Newf("unsupported patch op %q", op.Op)
	}
	return nil
}

func decodeValue(op patchOperation) (any, error) {
	if len(op.Value) == 0 {
		return nil, errors.Newf("%s %s: value is required", op.Op, op.Path)
	}
	var v any
	if err := json.Unmarshal(op.Value, &v); err != nil {
		return nil, errors.Wrapf(err, "decode value for %s", op.Path)
	}
	return v, nil
}

// walkPath resolves "/a/b/c" to the object holding the final segment.
// Intermediate segments must already exist as objects.
func walkPath(root map[string]any, path string) (map[string]any, string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, "", errors.Newf("patch path %q must start with /", path)
	}
	segments := strings.Split(path[1:], "/")
	cur := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return nil, "", errors.Newf("patch path %q does not traverse an object", path)
		}
		cur = next
	}
	leaf := segments[len(segments)-1]
	if leaf == "" {
		return nil, "", errors.Newf("patch path %q has an empty segment", path)
	}
	return cur, leaf, nil
}

// Package manifest loads manifests from CUE files.
//
// A manifest directory holds one CUE package whose top-level "manifests"
// struct is keyed by kind and then by object name; the value is the props:
//
//	package demo
//
//	manifests: Foo: myfoo: foo: true
//	manifests: Parent: parent: children: ["Sara", "Michael"]
//
// CUE constraints, defaults and references all resolve before decoding, so
// every value must be concrete. Each entry is decoded by the store registered
// for its kind.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/store"
)

// Error codes reported by the loader.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeUnknownKind = "E201" // No store registered for the kind
	ErrCodeIncomplete  = "E202" // Value is not concrete
	ErrCodeDecode      = "E203" // Store rejected the props
)

// Mode controls how errors are handled while loading.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// Registry resolves the store for a kind. *engine.Engine implements it.
type Registry interface {
	Store(kind object.Kind) (store.AnyStore, bool)
}

// Result holds the manifests decoded from a directory, ordered by kind then
// name.
type Result struct {
	Manifests []object.AnyManifest
	FileCount int
}

// LoadError is a loader failure, positioned in the CUE source when known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads the manifests in dir. With FailFast it returns on the first
// error; with CollectAll it decodes everything it can and returns every error.
func LoadDir(dir string, reg Registry, mode Mode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifests directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifests directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	// Nested conflicts only surface on validation.
	if err := value.Validate(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &Result{FileCount: len(files)}
	errs := decodeAll(value.LookupPath(cue.ParsePath("manifests")), reg, mode, result)

	sort.SliceStable(result.Manifests, func(i, j int) bool {
		a, b := result.Manifests[i], result.Manifests[j]
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		return a.Name() < b.Name()
	})
	return result, errs
}

// decodeAll walks manifests: <kind>: <name>: props.
func decodeAll(root cue.Value, reg Registry, mode Mode, result *Result) []error {
	if !root.Exists() {
		return nil
	}

	var errs []error
	kinds, err := root.Fields()
	if err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating manifests: %v", err), Pos: root.Pos()}}
	}

	for kinds.Next() {
		kind := object.Kind(kinds.Selector().Unquoted())
		st, ok := reg.Store(kind)
		if !ok {
			errs = append(errs, &LoadError{
				Code:    ErrCodeUnknownKind,
				Message: fmt.Sprintf("no store registered for kind %q", kind),
				Pos:     kinds.Value().Pos(),
			})
			if mode == FailFast {
				return errs
			}
			continue
		}

		names, err := kinds.Value().Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s manifests: %v", kind, err), Pos: kinds.Value().Pos()})
			if mode == FailFast {
				return errs
			}
			continue
		}

		for names.Next() {
			m, err := decodeOne(st, names.Selector().Unquoted(), names.Value())
			if err != nil {
				errs = append(errs, err)
				if mode == FailFast {
					return errs
				}
				continue
			}
			result.Manifests = append(result.Manifests, m)
		}
	}
	return errs
}

func decodeOne(st store.AnyStore, name string, props cue.Value) (object.AnyManifest, error) {
	where := fmt.Sprintf("%s/%s", st.Kind(), name)

	if err := props.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeIncomplete, Message: fmt.Sprintf("%s: %v", where, err), Pos: props.Pos()}
	}

	raw, err := props.MarshalJSON()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeIncomplete, Message: fmt.Sprintf("%s: %v", where, err), Pos: props.Pos()}
	}

	data, err := json.Marshal(struct {
		Meta  object.Meta     `json:"meta"`
		Props json.RawMessage `json:"props"`
	}{object.Meta{Name: name}, raw})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", where, err), Pos: props.Pos()}
	}

	m, err := st.Decode(data)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", where, err), Pos: props.Pos()}
	}
	return m, nil
}

// Apply inserts every manifest through cmd and waits for each to be stored.
// It stops at the first failure.
func Apply(ctx context.Context, cmd *command.Command, manifests []object.AnyManifest) error {
	for _, m := range manifests {
		if err := cmd.InsertAndWait(ctx, m); err != nil {
			return fmt.Errorf("apply %s/%s: %w", m.Kind(), m.Name(), err)
		}
	}
	return nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Code returns the loader error code of err, or ErrCodeGeneric.
func Code(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadFiles compiles each CUE file, unifies them into one value and
// compiles the result. Files may declare classes and machines in any
// split; the same label in two files must unify.
func LoadFiles(paths ...string) (*Program, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CUE files given")
	}
	ctx := cuecontext.New()
	var v cue.Value
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		f := ctx.CompileBytes(data, cue.Filename(path))
		if err := f.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		if i == 0 {
			v = f
			continue
		}
		v = v.Unify(f)
	}
	return Compile(v)
}

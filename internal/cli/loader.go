package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/jacquard/internal/compiler"
	"github.com/roach88/jacquard/internal/engine"
	"github.com/roach88/jacquard/internal/sysdef"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast returns as soon as anything goes wrong.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll keeps going and reports every error found.
	LoadModeCollectAll
)

// LoadResult is the outcome of loading a system definition directory.
//
// System is nil when the system block failed to compile; Config always holds
// at least the engine defaults.
type LoadResult struct {
	System    *sysdef.System
	Config    engine.Config
	CUEValue  cue.Value // unified value, kept for callers that need raw access
	FileCount int
}

// LoadError is a definition-loading failure with a stable code and, when
// the CUE source position is known, file/line/column context.
type LoadError struct {
	Code    string
	Field   string // CUE path that failed, when known
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + e.Message
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// LoadSystem compiles the CUE definition in dir: the top-level "system"
// struct becomes the system description and the optional "tuning" struct
// becomes the engine configuration. LoadModeFailFast returns at the first
// compile error; LoadModeCollectAll gathers everything wrong with the
// directory in one pass.
func LoadSystem(dir string, mode LoadMode) (*LoadResult, []error) {
	value, fileCount, loadErr := buildValue(dir)
	if loadErr != nil {
		return nil, []error{loadErr}
	}

	result := &LoadResult{
		Config:    engine.DefaultConfig(),
		CUEValue:  value,
		FileCount: fileCount,
	}

	var errs []error
	sysVal := value.LookupPath(cue.ParsePath("system"))
	if !sysVal.Exists() {
		return result, append(errs, &LoadError{Code: ErrCodeNoSystem, Field: "system", Message: "no system definition found"})
	}
	if sys, err := compiler.CompileSystem(sysVal); err != nil {
		errs = append(errs, convertCompileError(err, "system"))
		if mode == LoadModeFailFast {
			return result, errs
		}
	} else {
		result.System = sys
	}

	if tuning, err := compiler.CompileTuning(value.LookupPath(cue.ParsePath("tuning"))); err != nil {
		errs = append(errs, convertCompileError(err, "tuning"))
		if mode == LoadModeFailFast {
			return result, errs
		}
	} else {
		result.Config = tuning
	}

	return result, errs
}

// buildValue stats the directory, discovers its CUE files, and unifies them
// into one value through the cue loader.
func buildValue(dir string) (cue.Value, int, *LoadError) {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition directory not found: %s", dir)}
	case err != nil:
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definition directory: %v", err)}
	case !info.IsDir():
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if inst := instances[0]; inst.Err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return cue.Value{}, 0, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, len(cueFiles), nil
}

// FindCUEFiles returns every .cue file under dir, recursively.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError lifts a compiler error into a LoadError, preserving
// the field path and source position when the compiler recorded them.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Field:   context,
		Message: err.Error(),
	}
}

// Loader error code constants - unified across all CLI commands.
// Compile and validation errors carry the compiler's E1xx codes instead.
const (
	ErrCodeGeneric     = "E001" // Unclassified failure
	ErrCodeScanError   = "E002" // Directory walk failed
	ErrCodeNoFiles     = "E003" // No CUE files in the directory
	ErrCodeLoadFailed  = "E004" // cue/load rejected the instance
	ErrCodeNotFound    = "E005" // Definition path missing
	ErrCodeBuildFailed = "E006" // Building the CUE value failed
	ErrCodeNoSystem    = "E007" // No system block in the definition
)

// MapFieldToErrorCode maps a compile error field to an error code.
// Where a compile failure has a matching validation rule, the compiler's
// code is reused so operators see one code per mistake.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "name", strings.HasSuffix(field, ".name"):
		return compiler.ErrSystemNameEmpty
	case field == "subsystems":
		return compiler.ErrSystemNoSubsystems
	case strings.HasSuffix(field, ".rows"):
		return compiler.ErrEmptyIndexRange
	case strings.HasSuffix(field, ".from"), strings.HasSuffix(field, ".to"), strings.HasSuffix(field, ".subsystem"):
		return compiler.ErrUnknownSubsystemRef
	case strings.HasSuffix(field, ".kind"):
		return compiler.ErrInvalidComponentKind
	case field == "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

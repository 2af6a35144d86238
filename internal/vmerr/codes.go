package vmerr

import "fmt"

// Code is a verifier/runtime status code.
type Code uint16

const (
	UnknownCode Code = 0

	// Structural: the binary is malformed.
	IndexOutOfBounds              Code = 1001
	NoModuleHandles               Code = 1002
	NumberOfTypeArgumentsMismatch Code = 1003
	InvalidClosureMask            Code = 1004
	MalformedLayout               Code = 1005

	// Linkage: the binary does not match its dependencies.
	MissingDependency                       Code = 1101
	LookupFailed                            Code = 1102
	TypeMismatch                            Code = 1103
	LinkerError                             Code = 1104
	CalledScriptVisibleFromNonScriptVisible Code = 1105

	// Resource limits: well-formed but excessive.
	TooManyLocals          Code = 1201
	VMMaxValueDepthReached Code = 1202
	DependencyLimitReached Code = 1203
	OutOfGas               Code = 1204

	// Runtime type checks.
	RuntimeCyclicModuleDependency Code = 1301

	// Invariant violations: defects in the checker itself.
	UnknownInvariantViolationError Code = 2000
)

// Category groups codes by who is at fault.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryStructural
	CategoryLinkage
	CategoryResourceLimit
	CategoryRuntime
	CategoryInvariant
)

func (c Category) String() string {
	switch c {
	case CategoryStructural:
		return "structural"
	case CategoryLinkage:
		return "linkage"
	case CategoryResourceLimit:
		return "resource limit"
	case CategoryRuntime:
		return "runtime"
	case CategoryInvariant:
		return "invariant violation"
	default:
		return "unknown"
	}
}

// Category returns the group the code belongs to.
func (c Code) Category() Category {
	switch {
	case c >= 1000 && c < 1100:
		return CategoryStructural
	case c >= 1100 && c < 1200:
		return CategoryLinkage
	case c >= 1200 && c < 1300:
		return CategoryResourceLimit
	case c >= 1300 && c < 1400:
		return CategoryRuntime
	case c >= 2000 && c < 3000:
		return CategoryInvariant
	default:
		return CategoryUnknown
	}
}

// IsInvariantViolation reports whether the code signals a checker defect.
func (c Code) IsInvariantViolation() bool {
	return c.Category() == CategoryInvariant
}

var codeNames = map[Code]string{
	UnknownCode:                             "UNKNOWN_STATUS",
	IndexOutOfBounds:                        "INDEX_OUT_OF_BOUNDS",
	NoModuleHandles:                         "NO_MODULE_HANDLES",
	NumberOfTypeArgumentsMismatch:           "NUMBER_OF_TYPE_ARGUMENTS_MISMATCH",
	InvalidClosureMask:                      "INVALID_CLOSURE_MASK",
	MalformedLayout:                         "MALFORMED_LAYOUT",
	MissingDependency:                       "MISSING_DEPENDENCY",
	LookupFailed:                            "LOOKUP_FAILED",
	TypeMismatch:                            "TYPE_MISMATCH",
	LinkerError:                             "LINKER_ERROR",
	CalledScriptVisibleFromNonScriptVisible: "CALLED_SCRIPT_VISIBLE_FROM_NON_SCRIPT_VISIBLE",
	TooManyLocals:                           "TOO_MANY_LOCALS",
	VMMaxValueDepthReached:                  "VM_MAX_VALUE_DEPTH_REACHED",
	DependencyLimitReached:                  "DEPENDENCY_LIMIT_REACHED",
	OutOfGas:                                "OUT_OF_GAS",
	RuntimeCyclicModuleDependency:           "RUNTIME_CYCLIC_MODULE_DEPENDENCY",
	UnknownInvariantViolationError:          "UNKNOWN_INVARIANT_VIOLATION_ERROR",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", uint16(c))
}

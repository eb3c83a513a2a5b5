package codegen

import (
	"strconv"
	"strings"

	"github.com/wasmqbe/waqc/internal/wasm"
)

// qbeIdentifierLimit is the longest symbol name the backend accepts. Names
// exceeding it are deterministically shortened by replacing their tail
// with a hash suffix so two distinct long names never collide (see
// spec's design note on the QBE identifier length limit).
const qbeIdentifierLimit = 250

// mangleFunctionName computes the native symbol for function funcIdx.
// Imported functions keep their import field name unmodified so the
// linker can resolve them against the host; exported functions are
// prefixed with "wasm_" unless already named "_start" or prefixed with
// "wasm_"/"__wasm_"; every other function is internal and gets a
// "__wasm_" debug-name-or-index based name.
func mangleFunctionName(m *wasm.Module, funcIdx wasm.Index) string {
	numImported := m.NumImportedFunctions()
	if int(funcIdx) < numImported {
		count := 0
		for _, imp := range m.ImportSection {
			if imp.Type != wasm.ExternTypeFunc {
				continue
			}
			if count == int(funcIdx) {
				return limitIdentifier(imp.Name)
			}
			count++
		}
	}
	if name, ok := m.ExportedFunctionName(funcIdx); ok {
		return limitIdentifier(exportFunctionMangle(name))
	}
	return limitIdentifier("__wasm_" + m.FunctionName(funcIdx))
}

func exportFunctionMangle(name string) string {
	if name == "_start" || strings.HasPrefix(name, "wasm_") || strings.HasPrefix(name, "__wasm_") {
		return name
	}
	return "wasm_" + name
}

// mangleGlobalName computes the native symbol for global globalIdx:
// exported globals keep their export name, internal globals get a
// "__wasm_global_N" name.
func mangleGlobalName(m *wasm.Module, globalIdx wasm.Index) string {
	for _, exp := range m.ExportSection {
		if exp.Type == wasm.ExternTypeGlobal && exp.Index == globalIdx {
			return limitIdentifier(exp.Name)
		}
	}
	return limitIdentifier("__wasm_global_" + strconv.FormatUint(uint64(globalIdx), 10))
}

// limitIdentifier shortens name to qbeIdentifierLimit bytes, appending a
// deterministic hash of the full original name so distinct over-long
// names never collide after truncation.
func limitIdentifier(name string) string {
	if len(name) <= qbeIdentifierLimit {
		return name
	}
	suffix := "_" + strconv.FormatUint(uint64(fnv1a(name)), 16)
	keep := qbeIdentifierLimit - len(suffix)
	if keep < 0 {
		keep = 0
	}
	return name[:keep] + suffix
}

// fnv1a is a small, dependency-free hash used only to make truncated
// identifiers distinct; it is not used anywhere security-sensitive.
func fnv1a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Package scanner implements spec.md §4.2's pattern scanner: signature
// grammar and compilation, literal byte-by-byte wildcard matching
// (first-match-wins), the three scan surfaces, and READ/SUBTRACT
// post-processing. Grounded on original_source/native/pattern.h's
// ST_NORMAL/ST_READ/ST_SUBTRACT + search()/findPatternCore() shape; the
// byte-by-byte comparison is used rather than the regex translation seen in
// other_examples/H3nr1X-ReadWriteMemory's AOBScan, since a regex engine's
// own match semantics don't guarantee first-match-wins is preserved when
// wildcards sit adjacent to literal bytes at arbitrary offsets.
package scanner

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/memio"
	"github.com/xmemkit/xmemkit/pkg/procutil"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

var log = logflags.ScannerLogger()

// compileCache caches compiled PatternSpecs keyed by the raw pattern
// string, per spec.md §9 "compile once, reuse across candidates."
var compileCache, _ = lru.New(256)

// Compile parses a whitespace-separated token list into a PatternSpec.
// Each token is either two hex digits (case-insensitive literal byte) or
// "?"/"??" (wildcard). Any other token is a PatternSyntaxError.
func Compile(pattern string) (*toolkit.PatternSpec, error) {
	if cached, ok := compileCache.Get(pattern); ok {
		return cached.(*toolkit.PatternSpec), nil
	}

	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return nil, &toolkit.PatternSyntaxError{Token: pattern, Pos: 0}
	}

	tokens := make([]toolkit.PatternToken, len(fields))
	for i, f := range fields {
		if f == "?" || f == "??" {
			tokens[i] = toolkit.PatternToken{Wildcard: true}
			continue
		}
		if len(f) != 2 || !isHex(f[0]) || !isHex(f[1]) {
			return nil, &toolkit.PatternSyntaxError{Token: f, Pos: i}
		}
		tokens[i] = toolkit.PatternToken{Byte: byte(hexVal(f[0])<<4 | hexVal(f[1]))}
	}

	spec := &toolkit.PatternSpec{Tokens: tokens, Raw: pattern}
	compileCache.Add(pattern, spec)
	return spec, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// matchAt reports whether spec matches data at offset i.
func matchAt(spec *toolkit.PatternSpec, data []byte, i int) bool {
	for k, tok := range spec.Tokens {
		if tok.Wildcard {
			continue
		}
		if data[i+k] != tok.Byte {
			return false
		}
	}
	return true
}

// findInWindow implements §4.2.2: the first matching offset (lowest
// address) wins. Returns -1 if no match.
func findInWindow(spec *toolkit.PatternSpec, data []byte) int {
	l := spec.Len()
	if l == 0 || len(data) < l {
		return -1
	}
	for i := 0; i+l <= len(data); i++ {
		if matchAt(spec, data, i) {
			return i
		}
	}
	return -1
}

// postProcess implements §4.2.4: READ then SUBTRACT, in that fixed order.
func postProcess(h windows.Handle, raw uintptr, base uintptr, flags toolkit.ScanFlags) (uintptr, error) {
	result := raw
	if flags&toolkit.ScanRead != 0 {
		v, err := memio.Read(h, result, toolkit.Uptr)
		if err != nil {
			return 0, err
		}
		result = uintptr(v.U64)
	}
	if flags&toolkit.ScanSubtract != 0 {
		result = result - base
	}
	return result, nil
}

// FindPatternInRegion implements scan surface 3: read scanSize bytes from
// baseAddress and match inside.
func FindPatternInRegion(h windows.Handle, baseAddress uintptr, scanSize int, pattern string, flags toolkit.ScanFlags, patternOffset int) (uintptr, error) {
	spec, err := Compile(pattern)
	if err != nil {
		return 0, err
	}
	data, err := memio.ReadBuffer(h, baseAddress, scanSize)
	if err != nil {
		return 0, err
	}
	i := findInWindow(spec, data)
	if i < 0 {
		return 0, &toolkit.NotFoundError{Subject: "pattern " + pattern}
	}
	raw := baseAddress + uintptr(i) + uintptr(patternOffset)
	return postProcess(h, raw, baseAddress, flags)
}

// FindPatternByModule implements scan surface 1: read the full module,
// then match.
func FindPatternByModule(h windows.Handle, pid uint32, moduleName string, pattern string, flags toolkit.ScanFlags, patternOffset int) (uintptr, error) {
	mod, err := procutil.FindModule(moduleName, pid)
	if err != nil {
		return 0, err
	}
	return FindPatternInRegion(h, mod.ModBaseAddr, int(mod.ModBaseSize), pattern, flags, patternOffset)
}

// FindPatternByAddress implements scan surface 2 filtered to one candidate:
// searchAddress names the single module whose base must match; every other
// module is skipped. This resolves spec.md §9's Open Question — see
// SPEC_FULL.md §E.1: original_source/native/pattern.h's search() takes
// searchAddress as a filter over the enumerated candidate list, never as an
// absolute start address within the first candidate.
func FindPatternByAddress(h windows.Handle, pid uint32, searchAddress uintptr, pattern string, flags toolkit.ScanFlags, patternOffset int) (uintptr, error) {
	mods, err := procutil.ListModules(pid)
	if err != nil {
		return 0, err
	}
	for _, m := range mods {
		if searchAddress != 0 && m.ModBaseAddr != searchAddress {
			continue
		}
		addr, err := FindPatternInRegion(h, m.ModBaseAddr, int(m.ModBaseSize), pattern, flags, patternOffset)
		if err == nil {
			return addr, nil
		}
	}
	return 0, &toolkit.NotFoundError{Subject: "pattern " + pattern}
}

// FindPattern implements §4.2.5: scan every module in enumeration order,
// then every committed region, returning the first hit across the combined
// sequence. A candidate whose bytes can't be read is skipped silently.
func FindPattern(h windows.Handle, pid uint32, pattern string, flags toolkit.ScanFlags, patternOffset int) (uintptr, error) {
	spec, err := Compile(pattern)
	if err != nil {
		return 0, err
	}

	mods, err := procutil.ListModules(pid)
	if err != nil {
		return 0, err
	}
	for _, m := range mods {
		addr, err := scanOneCandidate(h, m.ModBaseAddr, int(m.ModBaseSize), spec, flags, patternOffset)
		if err != nil {
			log.WithError(err).Debug("skipping unreadable module candidate")
			continue
		}
		if addr != nil {
			return *addr, nil
		}
	}

	regions, err := procutil.ListRegions(h)
	if err != nil {
		return 0, err
	}
	for _, r := range regions {
		if r.State != toolkit.StateCommitted {
			continue
		}
		addr, err := scanOneCandidate(h, r.BaseAddress, int(r.RegionSize), spec, flags, patternOffset)
		if err != nil {
			log.WithError(err).Debug("skipping unreadable region candidate")
			continue
		}
		if addr != nil {
			return *addr, nil
		}
	}

	return 0, &toolkit.NotFoundError{Subject: "pattern " + pattern}
}

func scanOneCandidate(h windows.Handle, base uintptr, size int, spec *toolkit.PatternSpec, flags toolkit.ScanFlags, patternOffset int) (*uintptr, error) {
	if size <= 0 {
		return nil, nil
	}
	data, err := memio.ReadBuffer(h, base, size)
	if err != nil {
		return nil, err
	}
	i := findInWindow(spec, data)
	if i < 0 {
		return nil, nil
	}
	raw := base + uintptr(i) + uintptr(patternOffset)
	result, err := postProcess(h, raw, base, flags)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

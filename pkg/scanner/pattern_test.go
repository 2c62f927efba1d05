package scanner

import (
	"testing"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

func assertNoError(t *testing.T, err error, context string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", context, err)
	}
}

func TestCompile_literalAndWildcardTokens(t *testing.T) {
	spec, err := Compile("48 8B 05 ?? ?? ?? ?? C3")
	assertNoError(t, err, "Compile")
	if spec.Len() != 8 {
		t.Fatalf("expected 8 tokens, got %d", spec.Len())
	}
	if spec.Tokens[0].Byte != 0x48 || spec.Tokens[0].Wildcard {
		t.Fatalf("token 0 decoded wrong: %+v", spec.Tokens[0])
	}
	if !spec.Tokens[3].Wildcard {
		t.Fatalf("token 3 should be a wildcard")
	}
}

func TestCompile_singleQuestionMarkWildcard(t *testing.T) {
	spec, err := Compile("AA ? BB")
	assertNoError(t, err, "Compile")
	if !spec.Tokens[1].Wildcard {
		t.Fatalf("single '?' should parse as a wildcard")
	}
}

func TestCompile_rejectsMalformedToken(t *testing.T) {
	if _, err := Compile("48 ZZ 05"); err == nil {
		t.Fatalf("expected PatternSyntaxError for malformed token")
	}
	var perr *toolkit.PatternSyntaxError
	if _, err := Compile("48 ZZ 05"); err != nil {
		if e, ok := err.(*toolkit.PatternSyntaxError); ok {
			perr = e
		}
	}
	if perr == nil {
		t.Fatalf("expected a *toolkit.PatternSyntaxError")
	}
}

func TestCompile_rejectsEmptyPattern(t *testing.T) {
	if _, err := Compile("   "); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}

// Scenario 2 from spec.md §8: window with wildcards, hit at offset 0.
func TestFindInWindow_wildcardScenario(t *testing.T) {
	spec, err := Compile("48 8B 05 ?? ?? ?? ?? C3")
	assertNoError(t, err, "Compile")
	window := []byte{0x48, 0x8B, 0x05, 0x11, 0x22, 0x33, 0x44, 0xC3}
	i := findInWindow(spec, window)
	if i != 0 {
		t.Fatalf("expected hit at offset 0, got %d", i)
	}
}

// Scenario 5 from spec.md §8: a wildcard-only pattern matches at offset 0
// in any window of size >= L.
func TestFindInWindow_wildcardOnlyMatchesAtZero(t *testing.T) {
	spec, err := Compile("?? ?? ??")
	assertNoError(t, err, "Compile")
	window := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	i := findInWindow(spec, window)
	if i != 0 {
		t.Fatalf("expected offset 0, got %d", i)
	}
}

func TestFindInWindow_firstMatchWins(t *testing.T) {
	spec, err := Compile("AA BB")
	assertNoError(t, err, "Compile")
	window := []byte{0x00, 0xAA, 0xBB, 0xAA, 0xBB}
	i := findInWindow(spec, window)
	if i != 1 {
		t.Fatalf("expected first hit at offset 1, got %d", i)
	}
}

func TestFindInWindow_noMatch(t *testing.T) {
	spec, err := Compile("AA BB")
	assertNoError(t, err, "Compile")
	window := []byte{0x00, 0x01, 0x02}
	if i := findInWindow(spec, window); i != -1 {
		t.Fatalf("expected no match, got offset %d", i)
	}
}

func TestInstructionLength_rejectsInvalidHandle(t *testing.T) {
	if _, err := instructionLength(windows.InvalidHandle, 0x1000); err == nil {
		t.Fatal("expected an error for an invalid handle")
	}
}

func TestFindPatternSkipInstruction_rejectsEmptyPattern(t *testing.T) {
	if _, err := FindPatternSkipInstruction(windows.InvalidHandle, 0x1000, 16, "   ", toolkit.ScanNormal); err == nil {
		t.Fatal("expected a PatternSyntaxError for an empty pattern")
	}
}

func TestFindInWindow_windowSmallerThanPattern(t *testing.T) {
	spec, err := Compile("AA BB CC DD")
	assertNoError(t, err, "Compile")
	if i := findInWindow(spec, []byte{0xAA, 0xBB}); i != -1 {
		t.Fatalf("expected no match for undersized window, got %d", i)
	}
}

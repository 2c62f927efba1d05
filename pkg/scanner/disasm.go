package scanner

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/xmemkit/xmemkit/pkg/memio"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
	"golang.org/x/sys/windows"
)

// instructionLength decodes one x86-64 instruction at addr and returns its
// byte length. Grounded on pkg/proc/disasm_amd64.go's asmDecode; unlike
// delve's disassembler this toolkit has no need for operand formatting, so
// only Inst.Len is used.
func instructionLength(h windows.Handle, addr uintptr) (int, error) {
	mem, err := memio.ReadBuffer(h, addr, maxInstructionLength)
	if err != nil {
		return 0, err
	}
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		return 0, err
	}
	return inst.Len, nil
}

// maxInstructionLength is the longest possible x86-64 instruction encoding.
const maxInstructionLength = 15

// FindPatternSkipInstruction implements §4.2.4's READ/SUBTRACT post-processing
// followed by an opt-in enrichment not named in the pattern grammar itself:
// instead of landing the result on the matched pattern's own address (offset
// 0) or a caller-picked fixed patternOffset, it decodes the x86-64
// instruction at the hit and returns the address immediately following it.
// This is for the common "pattern matches a CALL/MOV whose operand I want,
// not the instruction's own bytes" case, where a fixed byte offset would
// have to be hand-computed per compiler and per build. Disassembly failure
// (e.g. the hit landed mid-instruction, or decoded past the read buffer)
// falls back to a plain offset-0 hit rather than erroring the whole scan.
func FindPatternSkipInstruction(h windows.Handle, baseAddress uintptr, scanSize int, pattern string, flags toolkit.ScanFlags) (uintptr, error) {
	hit, err := FindPatternInRegion(h, baseAddress, scanSize, pattern, flags&^toolkit.ScanSubtract, 0)
	if err != nil {
		return 0, err
	}
	length, err := instructionLength(h, hit)
	if err != nil {
		log.WithError(err).Debug("instruction-length decode failed, falling back to offset 0")
		length = 0
	}
	result := hit + uintptr(length)
	if flags&toolkit.ScanSubtract != 0 {
		result -= baseAddress
	}
	return result, nil
}

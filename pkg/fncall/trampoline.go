package fncall

import (
	"encoding/binary"

	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/internal/winapi"
)

// trampolineSize is large enough for the fixed amd64 shellcode prologue
// below: up to 4 argument loads (10+3 bytes each) plus the target call,
// return-value capture, and epilogue.
const trampolineSize = 128

// maxRegisterArgs is the number of paramBlock slots the x64 fastcall
// convention carries in integer registers (rcx, rdx, r8, r9); any
// argument beyond that is not yet supported by this trampoline.
const maxRegisterArgs = 4

// argRegLoad is the REX prefix and ModRM byte for "mov reg, [rax]" loading
// the i-th fastcall integer-argument register from the address already in
// rax.
var argRegLoad = [maxRegisterArgs]struct{ rex, modrm byte }{
	{0x48, 0x08}, // mov rcx, [rax]
	{0x48, 0x10}, // mov rdx, [rax]
	{0x4C, 0x00}, // mov r8,  [rax]
	{0x4C, 0x08}, // mov r9,  [rax]
}

// writeTrampoline assembles a small amd64 shellcode stub in the target and
// writes it to trampolineAddr. The stub:
//
//	mov rax, &paramBlock[0] ; mov rcx, [rax]   ; unpack each of up to 4
//	mov rax, &paramBlock[1] ; mov rdx, [rax]   ; argument slots into the
//	mov rax, &paramBlock[2] ; mov r8,  [rax]   ; x64 fastcall integer-arg
//	mov rax, &paramBlock[3] ; mov r9,  [rax]   ; registers, per slot present
//	mov rax, target
//	call rax
//	mov [scratch], rax         ; capture the return value
//	xor ecx, ecx
//	ret                        ; CreateRemoteThread's start routine returns a DWORD
//
// Grounded on the shape of koolo's searchPatternViaRemoteThread /
// readMemoryViaRemoteThread shellcode builders
// (d2go_local/pkg/memory/process.go): a short fixed prologue with its
// operand addresses patched in before WriteProcessMemory stages it into the
// target, then CreateRemoteThread executes it directly. Unlike that
// grounding, spec.md §4.3.3 requires the trampoline itself to unpack the
// parameter block into argument registers rather than handing the target
// function a pointer to it, so each present slot gets its own
// load-address/load-register pair instead of passing paramBlock in rcx.
func writeTrampoline(h windows.Handle, trampolineAddr, target, paramBlock, scratch uintptr, argCount int) error {
	code := make([]byte, 0, trampolineSize)

	n := argCount
	if n > maxRegisterArgs {
		n = maxRegisterArgs
	}
	for i := 0; i < n; i++ {
		slotAddr := paramBlock + uintptr(i)*8

		// mov rax, imm64 (&paramBlock[i])
		code = append(code, 0x48, 0xB8)
		code = appendUint64LE(code, uint64(slotAddr))

		// mov <argReg>, [rax]
		reg := argRegLoad[i]
		code = append(code, reg.rex, 0x8B, reg.modrm)
	}

	// mov rax, imm64 (target)
	code = append(code, 0x48, 0xB8)
	code = appendUint64LE(code, uint64(target))

	// call rax
	code = append(code, 0xFF, 0xD0)

	// mov r11, imm64 (scratch); mov [r11], rax
	code = append(code, 0x49, 0xBB)
	code = appendUint64LE(code, uint64(scratch))
	code = append(code, 0x49, 0x89, 0x03)

	// xor ecx, ecx ; ret
	code = append(code, 0x31, 0xC9, 0xC3)

	_, err := winapi.WriteProcessMemory(h, trampolineAddr, code)
	return err
}

func appendUint64LE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

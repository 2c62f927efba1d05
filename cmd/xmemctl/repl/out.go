package repl

import (
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// out is where the REPL prints command results. Plain os.Stdout on a
// console that already understands ANSI escapes (ConEmu, or a modern
// console with virtual terminal processing enabled); colorable.NewColorableStdout()
// otherwise, so a future colorized formatValue/prompt doesn't print raw
// escape codes on older cmd.exe consoles. Grounded on
// terminal/terminal_windows.go's getColorableWriter and
// pkg/terminal/out.go's isatty-gated pagingWriter.
var out io.Writer = newOutput()

const enableVirtualTerminalProcessing = 0x0004

func newOutput() io.Writer {
	if strings.ToLower(os.Getenv("ConEmuANSI")) == "on" {
		return os.Stdout
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return os.Stdout
	}
	h, err := syscall.GetStdHandle(syscall.STD_OUTPUT_HANDLE)
	if err != nil {
		return os.Stdout
	}
	var m uint32
	if err := syscall.GetConsoleMode(h, &m); err != nil {
		return os.Stdout
	}
	if m&enableVirtualTerminalProcessing != 0 {
		return os.Stdout
	}
	return colorable.NewColorableStdout()
}

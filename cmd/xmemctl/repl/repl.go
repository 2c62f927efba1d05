package repl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cosiner/argv"
	liner "github.com/go-delve/liner"
	"golang.org/x/sys/windows"

	"github.com/xmemkit/xmemkit/pkg/config"
	"github.com/xmemkit/xmemkit/pkg/hwdebug"
	"github.com/xmemkit/xmemkit/pkg/toolkit"
)

const historyFile = ".xmemctl_history"

type cmdFunc func(t *Term, args []string) error

type command struct {
	name string
	help string
	fn   cmdFunc
}

// Term is the interactive session: one open process handle at a time, a
// liner.State for input, and a fixed command table. Grounded on
// pkg/terminal/terminal.go's Term / pkg/terminal/command.go's Commands.
type Term struct {
	client Client
	line   *liner.State
	prompt string

	handle windows.Handle
	pid    uint32

	cmds []command
}

// New builds a Term with no process open yet.
func New(client Client) *Term {
	t := &Term{
		client: client,
		line:   liner.NewLiner(),
		prompt: "(xmemctl) ",
	}
	t.cmds = t.commandTable()
	if f, err := loadHistory(); err == nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	return t
}

func (t *Term) Close() {
	if f, err := saveHistory(); err == nil {
		t.line.WriteHistory(f)
		f.Close()
	}
	t.line.Close()
	if t.handle != 0 {
		t.client.CloseHandle(t.handle)
	}
}

func (t *Term) OpenPID(pid uint32) {
	p, err := t.client.OpenProcessByPID(pid)
	if err != nil {
		fmt.Fprintln(out, "open:", err)
		return
	}
	t.handle, t.pid = p.Handle, p.Th32ProcessID
	fmt.Fprintf(out, "opened pid %d (handle %v)\n", t.pid, t.handle)
}

func (t *Term) OpenName(name string) {
	p, err := t.client.OpenProcessByName(name)
	if err != nil {
		fmt.Fprintln(out, "open:", err)
		return
	}
	t.handle, t.pid = p.Handle, p.Th32ProcessID
	fmt.Fprintf(out, "opened %q as pid %d (handle %v)\n", name, t.pid, t.handle)
}

// Run drives the read/parse/dispatch loop until the user quits or EOF.
func (t *Term) Run() error {
	for {
		line, err := t.line.Prompt(t.prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.line.AppendHistory(line)

		fields, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		cmd := t.find(fields[0])
		if cmd == nil {
			fmt.Fprintf(out, "unknown command %q, try 'help'\n", fields[0])
			continue
		}
		if err := cmd.fn(t, fields[1:]); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

func (t *Term) find(name string) *command {
	for i := range t.cmds {
		if t.cmds[i].name == name {
			return &t.cmds[i]
		}
	}
	return nil
}

// splitArgs applies shell-style quoting rules via cosiner/argv, the same
// package pkg/terminal/command.go uses to parse 'restart' arguments.
func splitArgs(line string) ([]string, error) {
	v, err := argv.Argv(line, func(s string) (string, error) {
		return "", fmt.Errorf("backtick not supported in %q", s)
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v[0], nil
}

func (t *Term) requireHandle() error {
	if t.handle == 0 {
		return fmt.Errorf("no process open, use 'open <pid|name>' first")
	}
	return nil
}

func (t *Term) commandTable() []command {
	return []command{
		{"help", "help - list commands", cmdHelp},
		{"open", "open <pid|name> - open a target process", cmdOpen},
		{"close", "close - close the current handle", cmdClose},
		{"ps", "ps - list processes", cmdPs},
		{"modules", "modules - list modules of the open process", cmdModules},
		{"threads", "threads - list threads of the open process", cmdThreads},
		{"regions", "regions - list memory regions of the open process", cmdRegions},
		{"alloc", "alloc <size> [protect] - allocate memory in the open process", cmdAlloc},
		{"protect", "protect <addr> <size> <protect> - change page protection", cmdProtect},
		{"mapview", "mapview <mappingName> <size> [protect] - open a named section and map a view into the open process", cmdMapView},
		{"read", "read <type> <addr> - read one value", cmdRead},
		{"write", "write <type> <addr> <value> - write one value", cmdWrite},
		{"dump", "dump <addr> <n> - hex-dump n bytes", cmdDump},
		{"scan", "scan <pattern> [offset] - scan the process for a byte pattern", cmdScan},
		{"scanmod", "scanmod <module> <pattern> [offset] - scan one module for a byte pattern", cmdScanMod},
		{"scanskip", "scanskip <module> <pattern> - scan one module, landing past the matched instruction", cmdScanSkipInstruction},
		{"inject", "inject <dllpath> - load a DLL into the open process", cmdInject},
		{"unload", "unload <base|name> - unload a module from the open process", cmdUnload},
		{"attach", "attach [--kill] - start a debug session on the open process", cmdAttachDbg},
		{"detach", "detach - end the debug session on the open process", cmdDetachDbg},
		{"setbp", "setbp <slot 0-3> <addr> <x|w|rw> <len> - arm a hardware breakpoint", cmdSetBp},
		{"rmbp", "rmbp <slot 0-3> - disarm a hardware breakpoint", cmdRmBp},
		{"wait", "wait <slot> [timeoutMs] - block for the next matching debug event", cmdWait},
		{"cont", "cont <tid> - continue past the last debug event", cmdCont},
	}
}

func cmdHelp(t *Term, args []string) error {
	for _, c := range t.cmds {
		fmt.Fprintln(out, " ", c.help)
	}
	fmt.Fprintln(out, "  quit | exit - leave the session")
	return nil
}

func cmdOpen(t *Term, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <pid|name>")
	}
	if pid, err := strconv.ParseUint(args[0], 10, 32); err == nil {
		t.OpenPID(uint32(pid))
		return nil
	}
	t.OpenName(args[0])
	return nil
}

func cmdClose(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	_, err := t.client.CloseHandle(t.handle)
	t.handle, t.pid = 0, 0
	return err
}

func cmdPs(t *Term, args []string) error {
	procs, err := t.client.GetProcesses()
	if err != nil {
		return err
	}
	for _, p := range procs {
		fmt.Fprintf(out, "%6d  %s\n", p.Th32ProcessID, p.SzExeFile)
	}
	return nil
}

func cmdModules(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	mods, err := t.client.GetModules(t.pid)
	if err != nil {
		return err
	}
	for _, m := range mods {
		fmt.Fprintf(out, "0x%016x  %8d  %s\n", m.ModBaseAddr, m.ModBaseSize, m.SzModule)
	}
	return nil
}

func cmdThreads(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	threads, err := t.client.GetThreads(t.pid)
	if err != nil {
		return err
	}
	for _, th := range threads {
		fmt.Fprintf(out, "tid %6d  priority %d\n", th.Th32ThreadID, th.TpBasePri)
	}
	return nil
}

func cmdRegions(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	regions, err := t.client.GetRegions(t.handle)
	if err != nil {
		return err
	}
	for _, r := range regions {
		fmt.Fprintf(out, "0x%016x  size 0x%x  state 0x%x  protect 0x%x\n", r.BaseAddress, r.RegionSize, r.State, r.Protect)
	}
	return nil
}

func cmdRead(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: read <type> <addr>")
	}
	tag, err := toolkit.ParseTypeTag(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	v, err := t.client.ReadMemory(t.handle, addr, tag)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatValue(v))
	return nil
}

func cmdWrite(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("usage: write <type> <addr> <value>")
	}
	tag, err := toolkit.ParseTypeTag(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	val, err := parseValue(tag, args[2])
	if err != nil {
		return err
	}
	_, err = t.client.WriteMemory(t.handle, addr, tag, val)
	return err
}

func cmdDump(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: dump <addr> <n>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	buf, err := t.client.ReadBuffer(t.handle, addr, n)
	if err != nil {
		return err
	}
	for i := 0; i < len(buf); i += 16 {
		end := i + 16
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Fprintf(out, "0x%016x  % x\n", addr+uintptr(i), buf[i:end])
	}
	return nil
}

// Windows VirtualAllocEx/VirtualProtectEx constants the repl defaults to
// when the caller doesn't spell one out: MEM_COMMIT|MEM_RESERVE and
// PAGE_READWRITE.
const (
	memCommitReserve  = 0x1000 | 0x2000
	pageReadWriteFlag = 0x04
)

func cmdAlloc(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: alloc <size> [protect]")
	}
	size, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return err
	}
	protect := uint32(pageReadWriteFlag)
	if len(args) > 1 {
		p, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return err
		}
		protect = uint32(p)
	}
	addr, err := t.client.VirtualAllocEx(t.handle, 0, uintptr(size), memCommitReserve, protect)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%016x\n", addr)
	return nil
}

func cmdProtect(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("usage: protect <addr> <size> <protect>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return err
	}
	protect, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		return err
	}
	old, err := t.client.VirtualProtectEx(t.handle, addr, uintptr(size), uint32(protect))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "old protect 0x%x\n", old)
	return nil
}

func cmdMapView(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: mapview <mappingName> <size> [protect]")
	}
	size, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return err
	}
	protect := uint32(pageReadWriteFlag)
	if len(args) > 2 {
		p, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return err
		}
		protect = uint32(p)
	}
	section, err := t.client.OpenFileMapping(args[0])
	if err != nil {
		return err
	}
	addr, err := t.client.MapViewOfFile(t.handle, section, 0, uintptr(size), protect)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%016x\n", addr)
	return nil
}

func cmdScan(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: scan <pattern> [offset]")
	}
	offset := 0
	if len(args) > 1 {
		var err error
		offset, err = strconv.Atoi(args[1])
		if err != nil {
			return err
		}
	}
	addr, err := t.client.FindPattern(t.handle, t.pid, args[0], toolkit.ScanNormal, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%016x\n", addr)
	return nil
}

func cmdScanMod(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: scanmod <module> <pattern> [offset]")
	}
	offset := 0
	if len(args) > 2 {
		var err error
		offset, err = strconv.Atoi(args[2])
		if err != nil {
			return err
		}
	}
	addr, err := t.client.FindPatternByModule(t.handle, t.pid, args[0], args[1], toolkit.ScanNormal, offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%016x\n", addr)
	return nil
}

func cmdScanSkipInstruction(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: scanskip <module> <pattern>")
	}
	addr, err := t.client.FindPatternSkipInstruction(t.handle, t.pid, args[0], args[1], toolkit.ScanNormal)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%016x\n", addr)
	return nil
}

func cmdInject(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: inject <dllpath>")
	}
	_, err := t.client.InjectDll(t.handle, args[0])
	return err
}

func cmdUnload(t *Term, args []string) error {
	if err := t.requireHandle(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: unload <base|name>")
	}
	var ref toolkit.ModuleRef
	if base, err := parseAddr(args[0]); err == nil {
		ref.BaseAddr = base
	} else {
		ref.Name = args[0]
	}
	_, err := t.client.UnloadDll(t.handle, t.pid, ref)
	return err
}

func cmdAttachDbg(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	killOnExit := len(args) > 0 && args[0] == "--kill"
	_, err := t.client.AttachDebugger(int(t.pid), killOnExit)
	return err
}

func cmdDetachDbg(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	_, err := t.client.DetachDebugger(int(t.pid))
	return err
}

func cmdSetBp(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	if len(args) != 4 {
		return fmt.Errorf("usage: setbp <slot 0-3> <addr> <x|w|rw> <len>")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	var trigger toolkit.BreakpointTrigger
	switch args[2] {
	case "x":
		trigger = toolkit.TriggerExecute
	case "w":
		trigger = toolkit.TriggerWrite
	case "rw":
		trigger = toolkit.TriggerReadWrite
	default:
		return fmt.Errorf("trigger must be x, w, or rw")
	}
	length, err := strconv.Atoi(args[3])
	if err != nil {
		return err
	}
	_, err = t.client.SetHardwareBreakpoint(int(t.pid), addr, uint8(slot), trigger, length)
	return err
}

func cmdRmBp(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: rmbp <slot 0-3>")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	_, err = t.client.RemoveHardwareBreakpoint(int(t.pid), uint8(slot))
	return err
}

func cmdWait(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: wait <slot> [timeoutMs]")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	timeoutMs := uint32(5000)
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		timeoutMs = uint32(ms)
	}
	ev, err := t.client.AwaitDebugEvent(int(t.pid), int8(slot), timeoutMs)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "tid %d fault 0x%016x code 0x%x slot %d\n", ev.Tid, ev.FaultingAddress, ev.ExceptionCode, ev.HardwareRegister)
	if raw, err := json.Marshal(hwdebug.ToStoppedEvent(ev)); err == nil {
		fmt.Fprintln(out, string(raw))
	}
	return nil
}

func cmdCont(t *Term, args []string) error {
	if t.pid == 0 {
		return fmt.Errorf("no process open")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: cont <tid>")
	}
	tid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	_, err = t.client.HandleDebugEvent(int(t.pid), tid)
	return err
}

// loadHistory and saveHistory follow pkg/terminal/terminal.go's
// config.GetConfigFilePath convention rather than hardcoding a path.
func loadHistory() (*os.File, error) {
	path, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return os.Create(path)
	}
	return f, nil
}

func saveHistory() (*os.File, error) {
	path, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
}

func parseAddr(s string) (uintptr, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	return uintptr(v), err
}

func parseValue(tag toolkit.TypeTag, s string) (toolkit.Value, error) {
	v := toolkit.Value{Tag: tag}
	switch tag {
	case toolkit.String:
		v.Str = s
	case toolkit.Bool:
		v.Bool = s == "true" || s == "1"
	case toolkit.F32, toolkit.F64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, err
		}
		v.F32, v.F64 = float32(f), f
	default:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return v, err
			}
			v.U64 = u
			return v, nil
		}
		v.I64, v.U64 = n, uint64(n)
	}
	return v, nil
}

func formatValue(v toolkit.Value) string {
	switch v.Tag {
	case toolkit.String:
		return v.Str
	case toolkit.Bool:
		return fmt.Sprintf("%v", v.Bool)
	case toolkit.F32, toolkit.F64:
		return fmt.Sprintf("%v", v.F64)
	case toolkit.I8, toolkit.I16, toolkit.I32, toolkit.I64, toolkit.Char:
		return fmt.Sprintf("%d", v.I64)
	default:
		return fmt.Sprintf("%d (0x%x)", v.U64, v.U64)
	}
}

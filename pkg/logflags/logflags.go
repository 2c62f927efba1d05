// Package logflags provides one log-level flag and one logrus logger per
// subsystem, gated through a single comma-separated --log-output string.
// Grounded on delve's pkg/logflags makeLogger/Setup pattern, with the
// component set replaced by this toolkit's own subsystems.
package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var gateway = false
var memio = false
var scanner = false
var fncall = false
var inject = false
var hwdebug = false
var winapi = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Gateway returns true if the request gateway should log validation and
// dispatch decisions.
func Gateway() bool { return gateway }

func GatewayLogger() *logrus.Entry {
	return makeLogger(gateway, logrus.Fields{"layer": "gateway"})
}

// MemIO returns true if typed read/write and the string protocol should log.
func MemIO() bool { return memio }

func MemIOLogger() *logrus.Entry {
	return makeLogger(memio, logrus.Fields{"layer": "memio"})
}

// Scanner returns true if pattern compile/match should log.
func Scanner() bool { return scanner }

func ScannerLogger() *logrus.Entry {
	return makeLogger(scanner, logrus.Fields{"layer": "scanner"})
}

// FnCall returns true if the remote-call trampoline should log.
func FnCall() bool { return fncall }

func FnCallLogger() *logrus.Entry {
	return makeLogger(fncall, logrus.Fields{"layer": "fncall"})
}

// Inject returns true if DLL inject/unload should log.
func Inject() bool { return inject }

func InjectLogger() *logrus.Entry {
	return makeLogger(inject, logrus.Fields{"layer": "inject"})
}

// HwDebug returns true if attach/detach/breakpoint/event-loop should log.
func HwDebug() bool { return hwdebug }

func HwDebugLogger() *logrus.Entry {
	return makeLogger(hwdebug, logrus.Fields{"layer": "hwdebug"})
}

// WinAPI returns true if raw syscall failures should log.
func WinAPI() bool { return winapi }

func WinAPILogger() *logrus.Entry {
	return makeLogger(winapi, logrus.Fields{"layer": "winapi"})
}

// ProcUtilLogger shares the winapi flag: enumeration failures are reported
// at the same granularity as raw syscall failures.
func ProcUtilLogger() *logrus.Entry {
	return makeLogger(winapi, logrus.Fields{"layer": "procutil"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "gateway"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "gateway":
			gateway = true
		case "memio":
			memio = true
		case "scanner":
			scanner = true
		case "fncall":
			fncall = true
		case "inject":
			inject = true
		case "hwdebug":
			hwdebug = true
		case "winapi":
			winapi = true
		}
	}
	return nil
}

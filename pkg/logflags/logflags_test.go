package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetup_withoutLogFlag(t *testing.T) {
	gateway, memio, scanner, fncall, inject, hwdebug, winapi = false, false, false, false, false, false, false
	if err := Setup(false, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Gateway() {
		t.Fatalf("expected Gateway() to remain false")
	}
}

func TestSetup_logstrWithoutLogFlag(t *testing.T) {
	if err := Setup(false, "memio"); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
}

func TestSetup_defaultsToGateway(t *testing.T) {
	gateway, memio = false, false
	if err := Setup(true, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Gateway() {
		t.Fatalf("expected Gateway() to be true by default")
	}
	if MemIO() {
		t.Fatalf("expected MemIO() to remain false")
	}
}

func TestSetup_multipleComponents(t *testing.T) {
	gateway, memio, scanner, fncall, inject, hwdebug, winapi = false, false, false, false, false, false, false
	if err := Setup(true, "memio,scanner,hwdebug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !MemIO() || !Scanner() || !HwDebug() {
		t.Fatalf("expected memio, scanner and hwdebug to be enabled")
	}
	if Gateway() || FnCall() || Inject() || WinAPI() {
		t.Fatalf("expected unrelated components to remain disabled")
	}
}

func TestMakeLogger_levelFollowsFlag(t *testing.T) {
	on := makeLogger(true, logrus.Fields{"layer": "test"})
	if on.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected DebugLevel when flag is true, got %v", on.Logger.Level)
	}
	off := makeLogger(false, logrus.Fields{"layer": "test"})
	if off.Logger.Level != logrus.PanicLevel {
		t.Fatalf("expected PanicLevel when flag is false, got %v", off.Logger.Level)
	}
}

package rpc2

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"testing"

	"github.com/xmemkit/xmemkit/pkg/gateway"
)

// newTestPair wires an RPCServer and RPCClient over an in-memory pipe, the
// way delve's integration tests dial a real listener but without needing
// a live target process for these validation-path checks.
func newTestPair(t *testing.T) *RPCClient {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	server := rpc.NewServer()
	if err := server.RegisterName("RPCServer", &RPCServer{gw: gateway.New()}); err != nil {
		t.Fatalf("RegisterName: %v", err)
	}
	go server.ServeCodec(jsonrpc.NewServerCodec(serverConn))

	return NewClientFromConn(clientConn)
}

func TestRPCClient_OpenProcessByPID_rejectsZero(t *testing.T) {
	c := newTestPair(t)
	defer c.Close()

	_, err := c.OpenProcessByPID(0)
	if err == nil {
		t.Fatal("expected an error for pid 0")
	}
}

func TestRPCClient_FindModule_rejectsEmptyName(t *testing.T) {
	c := newTestPair(t)
	defer c.Close()

	_, err := c.FindModule("", 1234)
	if err == nil {
		t.Fatal("expected an error for empty module name")
	}
}

func TestRPCClient_ReadMemory_rejectsInvalidHandle(t *testing.T) {
	c := newTestPair(t)
	defer c.Close()

	_, err := c.ReadMemory(0, 0x1000, 0)
	if err == nil {
		t.Fatal("expected an error for a zero handle")
	}
}

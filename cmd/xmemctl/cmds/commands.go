// Package cmds builds the xmemctl command tree, grounded on
// cmd/dlv/cmds/commands.go's New(...)*cobra.Command shape: package-level
// flag variables bound in New, one cobra.Command per subcommand.
package cmds

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xmemkit/xmemkit/cmd/xmemctl/repl"
	"github.com/xmemkit/xmemkit/pkg/gateway"
	"github.com/xmemkit/xmemkit/pkg/logflags"
	"github.com/xmemkit/xmemkit/pkg/version"
	"github.com/xmemkit/xmemkit/service/rpc2"
)

var (
	addr      string
	pid       uint32
	name      string
	connectTo string
	logOutput string
	buildInfo bool

	tlsCert, tlsKey, tlsCACert             string
	connectCert, connectKey, connectCACert string
)

const rootLongDesc = `xmemctl inspects and manipulates a target Windows process: reading
and writing its memory, scanning for byte patterns, injecting and
unloading DLLs, and driving a hardware-breakpoint debug session.

Run without a subcommand to get help; run 'xmemctl repl' to open an
interactive session against a process on this machine, or 'xmemctl serve'
to expose the same operations over the network.`

// New returns the root xmemctl command tree. The version subcommand prints
// appVersion (the release tag main.go was built with) followed by
// version.XMemKitVersion in parentheses.
func New(appVersion string) *cobra.Command {
	root := &cobra.Command{
		Use:   "xmemctl",
		Short: "xmemctl inspects and manipulates Windows process memory.",
		Long:  rootLongDesc,
	}
	root.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Print xmemctl's version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xmemctl %s (%s)\n", appVersion, version.XMemKitVersion)
			if buildInfo {
				fmt.Println(version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVar(&buildInfo, "verbose", false, "Print module build info alongside the version.")
	root.AddCommand(versionCommand)

	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Run the request gateway as a network service.",
		Long:  "Starts a net/rpc/jsonrpc listener exposing every gateway operation, and blocks until interrupted.",
		Run:   serveCmd,
	}
	serveCommand.Flags().StringVarP(&addr, "listen", "l", "127.0.0.1:3347", "Listen address.")
	serveCommand.Flags().StringVar(&tlsCert, "tls-cert", "", "Server certificate; enables mutual TLS together with --tls-key and --tls-cacert.")
	serveCommand.Flags().StringVar(&tlsKey, "tls-key", "", "Server private key.")
	serveCommand.Flags().StringVar(&tlsCACert, "tls-cacert", "", "CA certificate trusted to sign client certificates.")
	root.AddCommand(serveCommand)

	replCommand := &cobra.Command{
		Use:   "repl",
		Short: "Open an interactive session against a process.",
		Long: `Opens an interactive session. By default it talks to the gateway
in-process (this machine only); pass --connect to talk to a running
'xmemctl serve' instance instead.

If --pid or --name is given the target process is opened immediately;
otherwise use the repl's own 'open' command once inside.`,
		Run: replCmd,
	}
	replCommand.Flags().Uint32Var(&pid, "pid", 0, "Open this process id on entry.")
	replCommand.Flags().StringVar(&name, "name", "", "Open the first process matching this executable name on entry.")
	replCommand.Flags().StringVar(&connectTo, "connect", "", "Connect to a running 'xmemctl serve' at this address instead of running locally.")
	replCommand.Flags().StringVar(&connectCert, "tls-cert", "", "Client certificate for --connect; enables mutual TLS together with --tls-key and --tls-cacert.")
	replCommand.Flags().StringVar(&connectKey, "tls-key", "", "Client private key for --connect.")
	replCommand.Flags().StringVar(&connectCACert, "tls-cacert", "", "CA certificate trusted to sign the server's certificate.")
	root.AddCommand(replCommand)

	return root
}

func serveCmd(cmd *cobra.Command, args []string) {
	if err := logflags.Setup(logOutput != "", logOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l, err := rpc2.NewServerTLS(addr, rpc2.TLSConfig{CertPath: tlsCert, KeyPath: tlsKey, CACertPath: tlsCACert})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("xmemctl listening on " + l.Addr().String())
	select {} // the rpc2 listener serves on its own goroutines; block forever
}

func replCmd(cmd *cobra.Command, args []string) {
	if err := logflags.Setup(logOutput != "", logOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var client repl.Client
	if connectTo != "" {
		var c *rpc2.RPCClient
		var err error
		tlsCfg := rpc2.TLSConfig{CertPath: connectCert, KeyPath: connectKey, CACertPath: connectCACert}
		if tlsCfg.CertPath != "" {
			c, err = rpc2.NewClientTLS(connectTo, tlsCfg)
		} else {
			c, err = rpc2.NewClient(connectTo)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		client = repl.RPCClientAdapter{RPCClient: c}
	} else {
		client = repl.GatewayAdapter{Gateway: gateway.New()}
	}

	t := repl.New(client)
	defer t.Close()

	if pid != 0 {
		t.OpenPID(pid)
	} else if name != "" {
		t.OpenName(name)
	}

	if err := t.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

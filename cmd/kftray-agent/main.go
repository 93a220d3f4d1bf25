// Command kftray-agent is the desktop-resident process that owns the
// persisted rule store and drives the orchestrator: "run" starts every
// enabled rule and blocks, restarting on network recovery; "config"
// manages the underlying store a TUI or CLI frontend would otherwise call
// into directly. Grounded on the teacher's cmd/client/main.go cobra+
// genericclioptions wiring, generalized from one-shot "forward these
// targets and exit" to "load persisted rules and keep them running".
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"

	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// rootOptions holds the flags every subcommand shares: where the store
// lives and which kubeconfig/context a newly added rule defaults to.
type rootOptions struct {
	configFlags *genericclioptions.ConfigFlags
	dbPath      string
	verbosity   int
}

func main() {
	opts := &rootOptions{configFlags: genericclioptions.NewConfigFlags(true)}

	root := &cobra.Command{
		Use:           "kftray-agent",
		Short:         "Run and manage kftray port-forward rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			slogutil.Init(opts.verbosity)
		},
	}

	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.StringVar(opts.configFlags.KubeConfig, "kubeconfig", *opts.configFlags.KubeConfig, "Path to the kubeconfig file new rules default to.")
	flags.StringVarP(opts.configFlags.Namespace, "namespace", "n", *opts.configFlags.Namespace, "Namespace new rules default to.")
	flags.StringVar(opts.configFlags.Context, "context", *opts.configFlags.Context, "Kubeconfig context new rules default to.")
	flags.StringVar(&opts.dbPath, "db", "", "Path to the sqlite store (default: resolved app config directory).")
	flags.IntVarP(&opts.verbosity, "v", "v", 3, "Number for the log level verbosity. The bigger the more verbose.")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newConfigCommand(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

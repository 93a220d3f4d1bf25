package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hcavarsan/kftray-sub001/internal/model"
	"github.com/hcavarsan/kftray-sub001/internal/store"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persisted port-forward rules",
	}
	cmd.AddCommand(newConfigListCommand(root))
	cmd.AddCommand(newConfigAddCommand(root))
	cmd.AddCommand(newConfigRemoveCommand(root))
	cmd.AddCommand(newConfigImportCommand(root))
	cmd.AddCommand(newConfigExportCommand(root))
	return cmd
}

func openStore(root *rootOptions) (*store.Store, error) {
	path, err := resolveDBPath(root.dbPath)
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

func newConfigListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			configs, err := st.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tALIAS\tWORKLOAD\tSELECTOR\tLOCAL\tREMOTE\tPROTOCOL")
			for _, c := range configs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s:%d\t%s\t%s\n",
					c.ID, c.Alias, c.WorkloadType, c.Selector(),
					c.LocalAddress, c.LocalPort, c.RemotePort, c.Protocol)
			}
			return w.Flush()
		},
	}
}

func newConfigAddCommand(root *rootOptions) *cobra.Command {
	var cfg model.Config
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new rule",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.Context == "" {
				cfg.Context = *root.configFlags.Context
			}
			if cfg.Namespace == "" {
				cfg.Namespace = *root.configFlags.Namespace
			}
			if cfg.Kubeconfig == nil && *root.configFlags.KubeConfig != "" {
				cfg.Kubeconfig = []string{*root.configFlags.KubeConfig}
			}
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.Create(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("created rule %d\n", id)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Alias, "alias", "", "Human-readable name for this rule.")
	flags.StringVar(&cfg.WorkloadType, "workload-type", model.WorkloadService, "One of service, pod, proxy, expose.")
	flags.StringVar(&cfg.Service, "service", "", "Target service name (workload-type=service).")
	flags.StringVar(&cfg.Target, "target", "", "Target label selector, or host:port for workload-type=proxy.")
	flags.StringVar(&cfg.LocalAddress, "local-address", "127.0.0.1", "Local address to bind.")
	flags.StringVar(&cfg.RemotePort, "remote-port", "", "Remote port, numeric or named.")
	flags.StringVar(&cfg.Protocol, "protocol", model.ProtocolTCP, "tcp or udp.")
	flags.Uint16Var(&cfg.LocalPort, "local-port", 0, "Local port; 0 picks a free port.")
	flags.BoolVar(&cfg.DomainEnabled, "domain-enabled", false, "Add a hosts-file entry for this rule.")
	flags.BoolVar(&cfg.AutoLoopbackAddress, "auto-loopback-address", false, "Allow SO_REUSEADDR rebinding of the local address.")
	flags.BoolVar(&cfg.HTTPLogsEnabled, "http-logs-enabled", false, "Record an HTTP request/response log for this rule.")
	flags.StringVar(&cfg.ProxyPatch, "proxy-patch", "", "JSON merge patch applied to the generated proxy pod (workload-type=proxy|expose).")
	return cmd
}

func newConfigRemoveCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a persisted rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Delete(id)
		},
	}
}

func newConfigImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.ImportJSON(payload)
		},
	}
}

func newConfigExportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export every persisted rule as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			st, err := openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			payload, err := st.ExportJSON()
			if err != nil {
				return err
			}
			var pretty json.RawMessage = payload
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], out, 0o600)
		},
	}
}

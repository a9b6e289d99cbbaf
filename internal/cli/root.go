// Package cli wires the kubilitics-gate commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/gate"
	"github.com/kubilitics/kubilitics-gate/internal/version"
)

type app struct {
	configPath string
	mode       string
	blocking   bool
	threshold  float64
	output     string
	kubeconfig string
	namespace  string
	deps       gate.Deps
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newApp(in, out, errOut).command()
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		configPath: config.DefaultConfigPath,
		stdin:      in,
		stdout:     out,
		stderr:     errOut,
	}
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubilitics-gate",
		Short: "AI-assisted deployment health gate for Kubernetes pipelines",
		Long: "kubilitics-gate scores cluster health across performance, infrastructure, platform and trend " +
			"telemetry and tells the pipeline whether to deploy or block.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.mode, "mode", "", "execution mode: simulation, real or auto")
	cmd.PersistentFlags().BoolVar(&a.blocking, "blocking", true, "exit 1 when the recommendation is block")
	cmd.PersistentFlags().Float64Var(&a.threshold, "threshold", 0, "minimum health score (0-100) for a deploy recommendation")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "", "output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	cmd.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", "", "namespace to evaluate")

	cmd.AddCommand(
		newCheckCmd(a),
		newValidateCmd(a),
		newHistoryCmd(a),
		newCompareCmd(a),
		newEnvCmd(a),
		newVersionCmd(),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("kubilitics-gate {{.Version}} (commit %s, built %s)\n", version.Commit, version.BuildDate))
	cmd.SetErrPrefix("kubilitics-gate: ")
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show kubilitics-gate build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kubilitics-gate %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
			return nil
		},
	}
}

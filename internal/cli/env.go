package cli

import (
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/gate"
	"github.com/kubilitics/kubilitics-gate/internal/kube"
	"github.com/kubilitics/kubilitics-gate/internal/report"
)

func newEnvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the detected runtime environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			kc := a.deps.Kube
			if kc == nil {
				c, err := kube.NewClient(rt.cfg.Telemetry.Kubeconfig, float32(rt.cfg.Telemetry.QueriesPerSecond))
				if err != nil {
					rt.logger.Debug("No Kubernetes configuration found", zap.Error(err))
				} else {
					kc = c
				}
			}
			env := gate.DetectEnvironment(a.deps.Detector, kc)

			p := report.NewPrinter(a.stdout)
			format, err := report.ParseFormat(rt.cfg.Report.Format)
			if err != nil {
				return failed(err)
			}
			switch format {
			case report.FormatJSON:
				return p.JSON(env)
			case report.FormatYAML:
				return p.YAML(env)
			}

			rows := [][]string{
				{"environment", string(env.Type)},
				{"kubernetes", strconv.FormatBool(env.KubernetesAvailable)},
			}
			if env.CloudProvider != "" {
				rows = append(rows, []string{"cloud", env.CloudProvider})
			}
			if env.APIServer != "" {
				rows = append(rows, []string{"api server", env.APIServer})
			}
			if env.Context != "" {
				rows = append(rows, []string{"context", env.Context})
			}
			rows = append(rows, []string{"configured mode", rt.cfg.Gate.Mode})
			p.Table([]string{"KEY", "VALUE"}, rows)
			return nil
		},
	}
}

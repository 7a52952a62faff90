// Copyright 2024 The Ingress-bench Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ingress-bench/ingress-bench/pkg/cluster"
	"github.com/ingress-bench/ingress-bench/pkg/config"
	"github.com/ingress-bench/ingress-bench/pkg/extract"
	"github.com/ingress-bench/ingress-bench/pkg/health"
	"github.com/ingress-bench/ingress-bench/pkg/loadtest"
	ibenchlog "github.com/ingress-bench/ingress-bench/pkg/log"
	"github.com/ingress-bench/ingress-bench/pkg/pipeline"
	"github.com/ingress-bench/ingress-bench/pkg/util"
	"github.com/ingress-bench/ingress-bench/pkg/version"
)

var binName = filepath.Base(os.Args[0])

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   binName,
	Short: "Benchmark ingress on ephemeral kubernetes clusters",
	Long: `Ingress-bench

Provisions a disposable kubernetes cluster, deploys ingress workloads and
drives an HTTP load test against them, reporting latency and error rates.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ingress-bench",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Version:", version.Version)
		fmt.Println("Git Commit:", version.GitCommit)
		fmt.Println("Build Date:", version.BuildDate)
		fmt.Println("Go Version:", version.GoVersion)
		fmt.Println("OS/Arch:", version.OsArch)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion",
	Short: "Generates completion scripts for bash shell",
	Long: `To load completion in the current shell run
. <(ingress-bench completion)

To configure your bash shell to load completions for each session execute:

# ingress-bench completion > /etc/bash_completion.d/ingress-bench
	`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rootCmd.GenBashCompletion(os.Stdout)
	},
}

// loadSpec parses the configuration file, an empty path yields defaults
func loadSpec(configFile string) config.Spec {
	if configFile == "" {
		return config.Defaults()
	}
	spec, err := config.Parse(configFile)
	if err != nil {
		log.Fatal(err.Error())
	}
	return spec
}

func kubeconfigFor(spec config.Spec, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(spec.ArtifactDir, fmt.Sprintf("%s.kubeconfig", spec.ClusterName))
}

func runCmd() *cobra.Command {
	var configFile, output string
	var keep bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full benchmark pipeline",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			spec := loadSpec(configFile)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			driver := pipeline.NewDriver(spec)
			driver.KeepCluster = keep
			report, runErr := driver.Run(ctx)
			if err := util.WriteOutput(os.Stdout, report, util.OutputFormat(output)); err != nil {
				log.Error(err.Error())
			}
			if runErr != nil {
				log.Errorf("Pipeline run %s failed at stage %s: %v", report.UUID, report.FailedStage, runErr)
				os.Exit(1)
			}
			log.Infof("Pipeline run %s passed", report.UUID)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the cluster after the run")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	return cmd
}

func provisionCmd() *cobra.Command {
	var configFile, output string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision and validate a cluster without benchmarking it",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			spec := loadSpec(configFile)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			provisioner := cluster.NewProvisioner(spec, func(ctx context.Context, handle *cluster.Handle) error {
				return health.NewValidator(handle.ClientSet, spec.Nodes, spec.ProbeImage).ValidateRequired(ctx)
			})
			handle, err := provisioner.Provision(ctx)
			if err != nil {
				log.Fatal(err.Error())
			}
			if err := util.WriteOutput(os.Stdout, handle, util.OutputFormat(output)); err != nil {
				log.Fatal(err.Error())
			}
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func destroyCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy the cluster of a previous run",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			spec := loadSpec(configFile)
			if err := cluster.NewProvisioner(spec, nil).Destroy(); err != nil {
				log.Fatal(err.Error())
			}
			log.Infof("Cluster %s destroyed", spec.ClusterName)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path")
	return cmd
}

func healthCheckCmd() *cobra.Command {
	var configFile, kubeconfig, output string
	cmd := &cobra.Command{
		Use:   "health-check",
		Short: "Run the health check battery against an existing cluster",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			spec := loadSpec(configFile)
			handle, err := cluster.Connect(spec.ClusterName, kubeconfigFor(spec, kubeconfig))
			if err != nil {
				log.Fatal(err.Error())
			}
			result := health.NewValidator(handle.ClientSet, spec.Nodes, spec.ProbeImage).Validate(context.Background())
			if err := util.WriteOutput(os.Stdout, result, util.OutputFormat(output)); err != nil {
				log.Fatal(err.Error())
			}
			if !result.Passed() {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Kubeconfig path, defaults to the artifact directory")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func loadTestCmd() *cobra.Command {
	var configFile, kubeconfig, output string
	cmd := &cobra.Command{
		Use:   "load-test",
		Short: "Run the load test against an already deployed cluster",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			spec := loadSpec(configFile)
			handle, err := cluster.Connect(spec.ClusterName, kubeconfigFor(spec, kubeconfig))
			if err != nil {
				log.Fatal(err.Error())
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			outcome, err := loadtest.NewOrchestrator(handle.ClientSet, spec).Run(ctx)
			if err != nil {
				log.Fatal(err.Error())
			}
			printEvaluation(outcome.RawLog, util.OutputFormat(output))
			if outcome.State != loadtest.StateSucceeded {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Kubeconfig path, defaults to the artifact directory")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func extractCmd() *cobra.Command {
	var logFile, output string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract metrics from a saved load test log",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			raw, err := os.ReadFile(logFile)
			if err != nil {
				log.Fatal(err.Error())
			}
			verdictPassed := printEvaluation(string(raw), util.OutputFormat(output))
			if !verdictPassed {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVarP(&logFile, "log-file", "f", "", "Load test log file")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("log-file")
	return cmd
}

// printEvaluation extracts metrics from raw log text, evaluates the fixed
// thresholds and writes both to stdout
func printEvaluation(rawLog string, format util.OutputFormat) bool {
	snapshot := extract.Extract(rawLog)
	policy := extract.DefaultThresholds()
	verdict := policy.Evaluate(snapshot)
	evaluation := struct {
		Metrics        extract.Snapshot `json:"metrics" yaml:"metrics"`
		Verdict        extract.Verdict  `json:"verdict" yaml:"verdict"`
		LatencyWarning bool             `json:"latencyWarning" yaml:"latencyWarning"`
	}{snapshot, verdict, policy.ExceedsLatency(snapshot)}
	if err := util.WriteOutput(os.Stdout, evaluation, format); err != nil {
		log.Fatal(err.Error())
	}
	return verdict.Passed
}

// executes rootCmd
func main() {
	rootCmd.AddCommand(
		versionCmd,
		runCmd(),
		provisionCmd(),
		destroyCmd(),
		healthCheckCmd(),
		loadTestCmd(),
		extractCmd(),
	)
	logLevel := rootCmd.PersistentFlags().String("log-level", "info", "Allowed values: trace, debug, info, warn, error, fatal")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		ibenchlog.SetLevel(*logLevel)
	}
	rootCmd.AddCommand(completionCmd)
	cobra.OnInitialize()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

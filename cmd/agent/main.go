package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pairforge/agent/internal/agent"
	"github.com/pairforge/agent/internal/config"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the pairing agent web service",
	Long: `Start the pairing agent web service.

If no config file is specified, the agent will look for config files in the following locations:
  - ./config.yaml
  - ./config/config.yaml
  - /etc/pairforge/config.yaml
  - ~/.config/pairforge/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}

		server, err := agent.StartWebService(cfg)
		if err != nil {
			logrus.Fatalf("Failed to start web service: %v", err)
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logrus.Infoln("Shutting down gracefully")
		server.Stop()
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service [install|uninstall|start|stop]",
	Short: "Manage the agent as an OS service",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}

		svc, err := agent.CreateService(cfg)
		if err != nil {
			logrus.Fatalf("Failed to create service: %v", err)
		}

		if err := service.Control(svc, args[0]); err != nil {
			logrus.Fatalf("Failed to %s service: %v", args[0], err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.AddCommand(serviceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("Failed to execute command: %v", err)
	}
}

/*
Copyright 2022 The Nerfstudio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/distributed"
	"github.com/ignatpenshin/nerfstudio/pkg/events"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/logging"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/telemetry"
	"github.com/ignatpenshin/nerfstudio/pkg/trainer"
	"github.com/ignatpenshin/nerfstudio/pkg/viewer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	_flagConfigPath string
	_flagTestMode   bool
)

func init() {
	trainCmd.Flags().StringVarP(&_flagConfigPath, "config", "c", "", "path to the training config file")
	trainCmd.Flags().BoolVar(&_flagTestMode, "test-mode", false, "evaluate against all evaluation cameras instead of the fixed subset")
	_ = trainCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:           "trainer",
	Short:         "radiance field training loop",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the trainer version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(consts.Version)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "run the training loop described by a config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := logging.GetLogger()
		defer func() {
			_ = log.Sync()
		}()

		cfg, err := config.NewForFile(_flagConfigPath)
		if err != nil {
			exit(log, err)
		}

		runID := uuid.New().String()
		log.Infow("starting training run", "run_id", runID, "version", consts.Version)

		if err := telemetry.Init(telemetry.Config{
			Enabled:     true,
			RunID:       runID,
			Environment: "trainer",
			Properties: map[string]interface{}{
				"world_size": cfg.Distributed.WorldSize,
			},
		}); err != nil {
			log.Warnw("telemetry disabled", "error", err)
		}
		defer telemetry.Close()

		writer, err := events.NewWriterFromConfig(cfg, runID, log)
		if err != nil {
			exit(log, err)
		}
		defer writer.Close()

		if cfg.Metrics.PrometheusPort > 0 {
			go func() {
				if err := writer.ServeMetrics(cfg.Metrics.PrometheusPort); err != nil {
					log.Warnw("metrics server stopped", "error", err)
				}
			}()
		}

		coordinator, err := distributed.NewCoordinator(cfg.Distributed, log)
		if err != nil {
			exit(log, err)
		}
		defer coordinator.Close()

		// the viewer is an observer; failing to reach it never aborts training
		var bridge *viewer.Bridge
		if cfg.Viewer.Enable && coordinator.IsCoordinator() {
			bridge, err = viewer.NewBridge(cfg.Viewer, log)
			if err != nil {
				log.Warnw("unable to connect to viewer; continuing without it", "error", err)
				bridge = nil
			} else {
				defer bridge.Close()
			}
		}

		t := trainer.New(cfg, coordinator, bridge, writer, log)
		if err := t.Setup(_flagTestMode); err != nil {
			exit(log, err)
		}

		errCh := make(chan error)
		go func() {
			errCh <- t.Train()
		}()

		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)

		select {
		case err := <-errCh:
			if err != nil {
				exit(log, err)
			}
			log.Infow("training complete", "run_id", runID)
		case <-sigint:
			// flush what we have; the last checkpoint is the resume point
			log.Info("Received TERM signal, handling a graceful shutdown...")
			if err := writer.WriteOutStorage(); err != nil {
				log.Warnw("failed to flush events during shutdown", "error", err)
			}
			log.Info("Shutdown complete, exiting...")
		}
	},
}

func exit(log *zap.SugaredLogger, err error) {
	telemetry.Error(err)
	telemetry.Close()
	log.Fatalf("%+v", err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomoncle/pdfdb/config"
	"github.com/tomoncle/pdfdb/database"
	"github.com/tomoncle/pdfdb/retry"
	"github.com/tomoncle/pdfdb/utils"
)

type checkOptions struct {
	configPath string
	debug      bool
	provider   string
	retries    int
	wait       time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &checkOptions{}

	root := &cobra.Command{
		Use:           "pdfdb",
		Short:         "Database connection tooling for the PDF server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("PDFDB_CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "print executed SQL statements")

	check := &cobra.Command{
		Use:   "check",
		Short: "Connect with retries, create missing tables and disconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}
	check.Flags().StringVar(&opts.provider, "provider", database.ProviderPostgres, "database provider (postgres, pgx, mysql, sqlite)")
	check.Flags().IntVar(&opts.retries, "retries", database.DefaultConnectRetries, "number of connect attempts")
	check.Flags().DurationVar(&opts.wait, "wait", database.DefaultConnectWait, "wait between failed attempts")

	root.AddCommand(check)
	return root
}

func runCheck(cmd *cobra.Command, opts *checkOptions) error {
	app, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	var file *utils.FileOptions
	if app.Log.File.Enabled {
		file = &utils.FileOptions{
			Path:       app.Log.File.Path,
			MaxSizeMB:  app.Log.File.MaxSizeMB,
			MaxBackups: app.Log.File.MaxBackups,
			MaxAgeDays: app.Log.File.MaxAgeDays,
			Compress:   app.Log.File.Compress,
		}
	}
	if err := utils.ConfigureLogging(app.Log.Level, app.Log.Format, file); err != nil {
		return err
	}
	database.Default().SetSlowQueryTime(app.SlowQueryTime)

	conn := database.NewConnection(opts.debug || app.Debug,
		database.WithConfig(app),
		database.WithProvider(opts.provider),
		database.WithRetryPolicy(retry.New(opts.retries, retry.WithWaitTime(opts.wait))),
	)
	return conn.Scope(cmd.Context(), func(_ context.Context, _ *database.Connection) error {
		fmt.Fprintf(cmd.OutOrStdout(), "database reachable (%s), %d model(s) mapped\n", opts.provider, len(database.RegisteredModels()))
		return nil
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

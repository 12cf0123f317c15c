// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/bigquery-mcp/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command. Running it starts the server.
var rootCmd = &cobra.Command{
	Use:   "bigquery-mcp",
	Short: "BigQuery MCP Server - expose BigQuery to LLM agents over MCP",
	Long: `bigquery-mcp is a Model Context Protocol (MCP) server that exposes
Google BigQuery operations (query execution, job control, result paging,
dataset and schema browsing) as MCP tools over stdio or HTTP/SSE.

Claude Desktop configuration (claude_desktop_config.json):

  {
    "mcpServers": {
      "bigquery": {
        "command": "/path/to/bigquery-mcp",
        "args": ["--project-id", "my-project"]
      }
    }
  }`,
	Version: version.Get(),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./bigquery-mcp.yaml)")

	// BigQuery flags
	rootCmd.PersistentFlags().String("project-id", "", "default Google Cloud project")
	rootCmd.PersistentFlags().String("location", "", "default BigQuery location/region (e.g. 'US', 'asia-northeast1')")
	rootCmd.PersistentFlags().String("credentials-file", "", "service account JSON key file (default: application default credentials)")
	rootCmd.PersistentFlags().Int("query-timeout", 30, "per-operation timeout in seconds")
	rootCmd.PersistentFlags().Int64("max-rows", 1000, "maximum rows per result page")
	rootCmd.PersistentFlags().Bool("expose-resources", false, "expose schemas and result chunks as bq:// resources")

	// Transport flags
	rootCmd.PersistentFlags().String("transport", "stdio", "transport mode (stdio, http)")
	rootCmd.PersistentFlags().String("host", "127.0.0.1", "HTTP listen host")
	rootCmd.PersistentFlags().Int("port", 8080, "HTTP listen port")

	// Rate limit flags
	rootCmd.PersistentFlags().Bool("rate-limit", true, "enable per-client rate limiting (use --rate-limit=false to disable)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path (default: stderr)")

	// Bind flags to viper
	_ = viper.BindPFlag("bigquery.project_id", rootCmd.PersistentFlags().Lookup("project-id"))
	_ = viper.BindPFlag("bigquery.location", rootCmd.PersistentFlags().Lookup("location"))
	_ = viper.BindPFlag("bigquery.credentials_file", rootCmd.PersistentFlags().Lookup("credentials-file"))
	_ = viper.BindPFlag("bigquery.query_timeout_seconds", rootCmd.PersistentFlags().Lookup("query-timeout"))
	_ = viper.BindPFlag("bigquery.max_rows", rootCmd.PersistentFlags().Lookup("max-rows"))
	_ = viper.BindPFlag("bigquery.expose_resources", rootCmd.PersistentFlags().Lookup("expose-resources"))

	_ = viper.BindPFlag("transport.mode", rootCmd.PersistentFlags().Lookup("transport"))
	_ = viper.BindPFlag("transport.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("transport.port", rootCmd.PersistentFlags().Lookup("port"))

	_ = viper.BindPFlag("rate_limit.enabled", rootCmd.PersistentFlags().Lookup("rate-limit"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

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
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/teradata-labs/bigquery-mcp/internal/version"
	"github.com/teradata-labs/bigquery-mcp/pkg/bigquery"
	"github.com/teradata-labs/bigquery-mcp/pkg/cursor"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/server"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/transport"
	"github.com/teradata-labs/bigquery-mcp/pkg/ratelimit"
	"github.com/teradata-labs/bigquery-mcp/pkg/resources"
	"github.com/teradata-labs/bigquery-mcp/pkg/tools"
	"go.uber.org/zap"
)

const serverName = "bigquery-mcp"

// runServe builds the server from the loaded config and runs the selected
// transport until the context is cancelled.
func runServe(ctx context.Context) error {
	logger, logLevel, err := buildLogger(config.Logging.File, config.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bigquery-mcp server",
		zap.String("version", version.Get()),
		zap.String("transport", config.Transport.Mode),
		zap.String("project_id", config.BigQuery.ProjectID),
	)

	client, err := bigquery.NewRESTClient(ctx, bigquery.Config{
		Endpoint:        config.BigQuery.Endpoint,
		CredentialsFile: config.BigQuery.CredentialsFile,
		Logger:          logger.Named("bigquery"),
	})
	if err != nil {
		return fmt.Errorf("create bigquery client: %w", err)
	}

	cursors, err := cursor.NewCodec()
	if err != nil {
		return fmt.Errorf("create cursor codec: %w", err)
	}

	var limiter *ratelimit.Limiter
	if config.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			Enabled:           true,
			RequestsPerSecond: config.RateLimit.RequestsPerSecond,
			BurstCapacity:     config.RateLimit.BurstCapacity,
			Logger:            logger.Named("ratelimit"),
		})
	}

	toolProvider := tools.NewProvider(client, tools.Config{
		ProjectID:       config.BigQuery.ProjectID,
		Location:        config.BigQuery.Location,
		QueryTimeout:    config.BigQuery.QueryTimeout(),
		MaxRowsLimit:    config.BigQuery.MaxRows,
		ExposeResources: config.BigQuery.ExposeResources,
	}, limiter, cursors, logger.Named("tools"))

	opts := []server.Option{
		server.WithToolProvider(toolProvider),
		server.WithWorkers(config.Transport.Workers),
		server.WithLogLevelSetter(func(level string) error {
			logLevel.SetLevel(mcpLevelToZap(level))
			return nil
		}),
	}
	if config.BigQuery.ExposeResources {
		resourceProvider := resources.NewProvider(client, resources.Config{
			ProjectID: config.BigQuery.ProjectID,
			Location:  config.BigQuery.Location,
		}, cursors, logger.Named("resources"))
		opts = append(opts, server.WithResourceProvider(resourceProvider))
	}

	mcpServer := server.NewMCPServer(serverName, version.Get(), logger, opts...)

	switch config.Transport.Mode {
	case "http":
		return serveHTTP(ctx, mcpServer, logger)
	default:
		return serveStdio(ctx, mcpServer, logger)
	}
}

// serveStdio runs the server on stdin/stdout. stdout carries protocol
// frames only; all diagnostics go through the logger.
func serveStdio(ctx context.Context, mcpServer *server.MCPServer, logger *zap.Logger) error {
	stdioTransport := transport.NewStdioServerTransport(os.Stdin, os.Stdout)

	logger.Info("MCP server ready, awaiting client connections on stdio")
	err := mcpServer.Serve(server.WithClientID(ctx, "stdio"), stdioTransport)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("server stopped gracefully")
			return nil
		}
		if errors.Is(err, io.EOF) {
			logger.Info("client closed stdin, shutting down")
			return nil
		}
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}

// serveHTTP runs the streamable HTTP transport. Each POST is handled
// directly; the rate limiter keys off the session ID.
func serveHTTP(ctx context.Context, mcpServer *server.MCPServer, logger *zap.Logger) error {
	httpTransport, err := transport.NewStreamableHTTPServer(transport.StreamableHTTPServerConfig{
		Handler: func(reqCtx context.Context, msg []byte) ([]byte, error) {
			if sid := transport.SessionIDFromContext(reqCtx); sid != "" {
				reqCtx = server.WithClientID(reqCtx, sid)
			}
			return mcpServer.HandleMessage(reqCtx, msg)
		},
		Logger:         logger.Named("http"),
		SessionTTL:     config.Transport.SessionTTL(),
		AllowedOrigins: config.Transport.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("create http transport: %w", err)
	}
	defer httpTransport.Close()

	// Server-initiated notifications (log messages and the like) have no
	// response to ride on over HTTP; pump them onto the sessions' GET
	// streams instead.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case notif := <-mcpServer.Notifications():
				httpTransport.Broadcast(notif)
			}
		}
	}()

	addr := config.Transport.Addr()
	transport.WarnIfNotLocalhost(logger, addr)

	mux := http.NewServeMux()
	mux.Handle("/mcp", httpTransport)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

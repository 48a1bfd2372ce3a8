package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	intrnl "telechat/internal"
)

// NewRootCommand builds the telechat CLI. Flag defaults come from TELECHAT_*
// environment variables.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "telechat",
		Short:         "Real-time chat relay and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		NewServerCommand(),
		NewClientCommand(),
		newLocalCommand(),
		newVersionCommand(),
	)
	return root
}

// NewServerCommand runs the relay until interrupted.
func NewServerCommand() *cobra.Command {
	cfg, envErr := LoadServerConfig()
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the chat relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			logger, err := NewLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handle, err := RunServer(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return handle.Wait()
		},
	}
	bindServerFlags(cmd.Flags(), &cfg)
	return cmd
}

// NewClientCommand opens the terminal client against a relay.
func NewClientCommand() *cobra.Command {
	cfg, envErr := LoadClientConfig()
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Open the terminal client",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if envErr != nil {
				return envErr
			}
			return RunClient(cfg)
		},
	}
	bindClientFlags(cmd.Flags(), &cfg, true)
	return cmd
}

func newLocalCommand() *cobra.Command {
	serverCfg, serverErr := LoadServerConfig()
	clientCfg, clientErr := LoadClientConfig()
	serverCfg.Addr = "127.0.0.1:0"
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run a private relay and a client in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := errors.Join(serverErr, clientErr); err != nil {
				return err
			}
			return runLocal(cmd.Context(), serverCfg, clientCfg)
		},
	}
	flags := cmd.Flags()
	bindServerFlags(flags, &serverCfg)
	bindClientFlags(flags, &clientCfg, false)
	return cmd
}

// runLocal serves on a loopback port and points the client at it. The relay
// stops when the client exits.
func runLocal(parent context.Context, serverCfg ServerConfig, clientCfg ClientConfig) error {
	// the terminal belongs to the TUI, so relay logs follow the client log file
	logger, closeLog, err := OpenLogFile(clientCfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle, err := RunServer(ctx, serverCfg, logger.With().Str("component", "server").Logger())
	if err != nil {
		return err
	}
	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)

	group, _ := errgroup.WithContext(ctx)
	group.Go(handle.Wait)
	group.Go(func() error {
		defer cancel()
		return RunClient(clientCfg)
	})
	return group.Wait()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the telechat version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), intrnl.UserAgent())
		},
	}
}

func bindServerFlags(flags *pflag.FlagSet, cfg *ServerConfig) {
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.StringVar(&cfg.Path, "path", cfg.Path, "websocket join path")
	flags.StringVar(&cfg.PublicDir, "public-dir", cfg.PublicDir, "directory served statically; disk uploads land in <dir>/uploads")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the upload ledger and pebble blobs")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite upload ledger path (defaults under --data-dir)")
	flags.StringVar(&cfg.Backend, "blob-backend", cfg.Backend, "blob backend: disk, pebble or remote")
	flags.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "largest accepted upload")
	flags.Int64Var(&cfg.MaxImageBytes, "max-image-bytes", cfg.MaxImageBytes, "largest accepted image upload")
	flags.StringVar(&cfg.RemoteEndpoint, "remote-endpoint", cfg.RemoteEndpoint, "upload endpoint for the remote backend")
	flags.StringVar(&cfg.RemotePreset, "remote-preset", cfg.RemotePreset, "unsigned upload preset for the remote backend")
	flags.IntVar(&cfg.SeenCacheSize, "seen-cache", cfg.SeenCacheSize, "recent envelope ids kept to validate seen receipts (0 disables)")
	flags.IntVar(&cfg.MessageBurst, "message-burst", cfg.MessageBurst, "messages a session may send per window")
	flags.DurationVar(&cfg.MessageWindow, "message-window", cfg.MessageWindow, "session message rate window")
	flags.IntVar(&cfg.UploadBurst, "upload-burst", cfg.UploadBurst, "uploads per client IP per window")
	flags.DurationVar(&cfg.UploadWindow, "upload-window", cfg.UploadWindow, "upload rate window")
	flags.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "use X-Forwarded-For/X-Real-IP as the client address")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: auto, console or json")
}

func bindClientFlags(flags *pflag.FlagSet, cfg *ClientConfig, withServer bool) {
	if withServer {
		flags.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "relay websocket URL (e.g. ws://localhost:8080/ws)")
	}
	flags.StringVar(&cfg.Username, "user", cfg.Username, "display name; prompts when empty")
	flags.StringVar(&cfg.BrowseDir, "browse-dir", cfg.BrowseDir, "starting directory for the file browser")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write client logs to this file")
}

func buildWebsocketURL(addr, path string) string {
	path = NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

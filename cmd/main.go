package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/webmirror/adapters"
	"github.com/brettbedarf/webmirror/config"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/brettbedarf/webmirror/server"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   int
	remoteURL string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "webmirror",
		Short:        "Browse and mount a remote file tree through a local mirror",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", config.InfoVerbose,
		"Log verbosity level between 1 (error) and 5 (trace)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "remote base URL, overrides the config file")

	rootCmd.AddCommand(
		newSyncCmd(),
		newLsCmd(),
		newCatCmd(),
		newFavCmd(),
		newMkdirCmd(),
		newPutCmd(),
		newMountCmd(),
	)
	return rootCmd
}

// loadConfig merges the config file and command line flags over the defaults
func loadConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if cfgFile != "" {
		override, err := config.LoadConfigOverrideFile(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg.Merge(override)
	}

	override := &config.ConfigOverride{LogLvl: &verbose}
	if remoteURL != "" {
		override.RemoteURL = &remoteURL
	}
	cfg.Merge(override)
	return cfg, nil
}

// openMirror builds the remote named by the config and opens the local mirror
func openMirror(ctx context.Context) (*server.Mirror, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	util.InitializeLogger(cfg.LogLvl)

	registry := adapters.NewRegistry()
	adapters.RegisterBuiltins(registry)
	remote, err := registry.NewRemote(cfg)
	if err != nil {
		return nil, err
	}
	return server.New(ctx, cfg, remote)
}

func newMountCmd() *cobra.Command {
	var umount bool

	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount the mirror read-only until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mnt := args[0]
			m, err := openMirror(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()
			logger := util.GetLogger("main")

			// Try unmount if requested
			if umount {
				c := exec.Command("fusermount", "-u", mnt)
				// we ignore error here if not already mounted
				c.Run() // nolint:errcheck
			}

			if err := m.Serve(mnt); err != nil {
				return fmt.Errorf("mount filesystem: %w", err)
			}
			logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

			// Setup signal handling for graceful shutdown
			signalChan := make(chan os.Signal, 1)
			signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			unmounted := make(chan struct{})
			go func() {
				m.Wait()
				close(unmounted)
			}()

			select {
			case sig := <-signalChan:
				logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")
			case <-unmounted:
				logger.Info().Msg("Filesystem unmounted externally")
				return nil
			}

			if err := m.Unmount(); err != nil {
				logger.Error().Err(err).Msg("Failed to unmount filesystem")
				return err
			}
			logger.Info().Msg("Filesystem unmounted successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	return cmd
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log/v2"
	"github.com/charmbracelet/mirror/internal/flatten"
	"github.com/charmbracelet/mirror/internal/mirror"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	watchCmd.Flags().BoolP("all", "a", false, "Follow events of every project")
	watchCmd.Flags().IntP("width", "w", defaultWidth, "Truncate lines to this width")
}

const staleCheckInterval = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [session...]",
	Short: "Follow sessions as they change",
	Long: `Keep a live mirror of the given sessions and print their items as they
are added or updated. Without arguments, only cache activity is logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		width, _ := cmd.Flags().GetInt("width")
		debug, _ := cmd.Flags().GetBool("debug")

		cfg, c, err := setup(cmd)
		if err != nil {
			return err
		}

		logger := log.New(os.Stderr)
		logger.SetReportTimestamp(true)
		slog.SetDefault(slog.New(logger))
		if debug {
			logger.SetLevel(log.DebugLevel)
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		keys := make([]proto.SessionKey, 0, len(args))
		for _, arg := range args {
			key, err := resolveKey(arg, cfg.WorkingDir())
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigch := make(chan os.Signal, 1)
		sigs := []os.Signal{os.Interrupt}
		sigs = append(sigs, addSignals(sigs)...)
		signal.Notify(sigch, sigs...)
		defer signal.Stop(sigch)

		m := mirror.New(c, mirror.OptionsFromConfig(cfg))
		defer m.Shutdown()

		dir := cfg.WorkingDir()
		if all {
			dir = ""
		}
		errch := make(chan error, 1)
		go func() {
			errch <- m.Run(ctx, dir)
		}()
		slog.Info("Watching sessions", "addr", c.Addr(), "directory", dir, "sessions", len(keys))

		out := cmd.OutOrStdout()
		for _, key := range keys {
			v := m.OpenView(key)
			defer v.Close()
			if err := v.Hydrate(ctx, false); err != nil {
				if errors.Is(err, mirror.ErrSessionNotFound) {
					return fmt.Errorf("session %s: %w", key, err)
				}
				return err
			}
			go follow(ctx, out, v, width)
		}

		select {
		case <-sigch:
			slog.Info("Received interrupt signal...")
		case err := <-errch:
			if err != nil {
				slog.Error("Mirror stopped", "error", err)
				return err
			}
		case <-ctx.Done():
		}
		return nil
	},
}

// follow prints the items of a view whenever its session changes. Items are
// reused across renders while unchanged, so only new pointers get printed.
func follow(ctx context.Context, w io.Writer, v *mirror.View, width int) {
	changes := v.Changes(ctx)
	printed := make(map[string]*flatten.Item)
	flush := func() {
		for _, item := range v.Items() {
			if printed[item.ID] == item {
				continue
			}
			printed[item.ID] = item
			fmt.Fprintf(w, "%s %s\n", idStyle.Render(v.Key.ID), renderItem(item, width))
		}
	}
	flush()

	// A reconnect flags sessions stale without publishing a change.
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rehydrate(ctx, v)
			flush()
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if ev.Payload.Kind == store.ChangeEvicted {
				slog.Debug("Session evicted while watched", "session", v.Key.String())
			}
			rehydrate(ctx, v)
			flush()
		}
	}
}

// rehydrate is a no-op unless the cached messages are stale.
func rehydrate(ctx context.Context, v *mirror.View) {
	err := v.Hydrate(ctx, false)
	if err != nil && !errors.Is(err, mirror.ErrViewClosed) && ctx.Err() == nil {
		slog.Error("Failed to hydrate session", "session", v.Key.String(), "error", err)
	}
}

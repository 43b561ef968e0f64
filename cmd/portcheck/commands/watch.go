package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		sourceDir string
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the migration when sources change",
		Long: `Watch the C source directory and re-run the migration whenever a .c file
is written. Changes arriving while a run is in progress are coalesced into
one follow-up run.`,
		Example: `  # Watch ./src and re-run on every change
  portcheck -c portcheck.cue watch

  # Wait a little longer for editors that write in bursts
  portcheck -c portcheck.cue watch --debounce 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if sourceDir != "" {
				cfg.Project.SourceDir = sourceDir
			}

			tel, err := buildTelemetry(cfg)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())
			log := tel.Logger.NewComponentLogger("watch")

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(cfg.Project.SourceDir); err != nil {
				return err
			}
			log.WithField("dir", cfg.Project.SourceDir).Info("watching for changes")

			ctx := cmd.Context()
			runOnce := func() {
				rep, err := runMigration(ctx, cfg, tel)
				if err != nil {
					log.WithError(err).Error("migration run failed")
					return
				}
				if err := renderReport(cmd.OutOrStdout(), rep, ""); err != nil {
					log.WithError(err).Warn("failed to render report")
				}
			}

			// Initial run, then rebuild on changes.
			runOnce()

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Ext(event.Name) != ".c" {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
						continue
					}
					log.WithField("file", event.Name).Debug("source changed")
					// Editors write in bursts; coalesce them.
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.WithError(err).Warn("watch error")
				case <-pending:
					runOnce()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&sourceDir, "source", "s", "", "C source directory (overrides config)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay before re-running after a change")

	return cmd
}

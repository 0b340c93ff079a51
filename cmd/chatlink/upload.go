package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/VladFo01/chatlink/chatlink/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload PATH...",
	Short: "Upload files and wait until they are processed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.stop()
		if err := a.requireToken(); err != nil {
			return err
		}

		var (
			mu     sync.Mutex
			failed int
		)
		report := func(format string, c *color.Color, v ...any) {
			mu.Lock()
			defer mu.Unlock()
			if c == nil {
				fmt.Printf(format, v...)
				return
			}
			c.Printf(format, v...)
		}

		// Failures are counted rather than returned so one bad file does
		// not cancel the others.
		var g errgroup.Group
		g.SetLimit(a.cfg.Upload.Concurrency)
		for _, path := range args {
			g.Go(func() error {
				u := a.uploader()
				name := filepath.Base(path)
				var (
					jobMu sync.Mutex
					last  upload.Status
				)
				u.OnUpdate = func(j upload.Job) {
					jobMu.Lock()
					changed := j.Status != last
					last = j.Status
					jobMu.Unlock()
					if changed {
						report("%-24s %s\n", nil, name, j.Status)
					}
				}

				job, err := u.Run(cmd.Context(), path)
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					report("%-24s %s: %v\n", color.New(color.FgRed), name, job.Status, describe(err))
					return nil
				}
				report("%-24s done (file id %s)\n", color.New(color.FgGreen), name, job.FileID)
				return nil
			})
		}
		_ = g.Wait()

		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

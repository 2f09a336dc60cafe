// Package main - main.go
//
// Command-line entry point.
//
// Commands:
//   - run:      start the battle automation loop (Ctrl-C stops it cleanly)
//   - reset:    request a state reset by dropping the reset sentinel file
//   - devices:  list devices visible to adb
//   - capture:  save one normalized screenshot, for building templates
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	debugFlag bool
)

func main() {
	root := &cobra.Command{
		Use:          "battlebot",
		Short:        "Automates expansion battles on an Android device over adb",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml)")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(runCmd(), resetCmd(), devicesCmd(), captureCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadAndLog loads settings and brings up the global logger
func loadAndLog() (*Settings, error) {
	settings, err := LoadSettings(cfgPath)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		settings.Debug = true
	}
	if err := InitLogger(settings.Paths.Log, true, settings.Debug); err != nil {
		return nil, err
	}
	return settings, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the battle automation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndLog()
			if err != nil {
				return err
			}
			defer CloseLogger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := NewADBClient(settings.ADB)
			connectCtx, cancel := context.WithTimeout(ctx, settings.ADB.CommandTimeout)
			err = client.Connect(connectCtx)
			cancel()
			if err != nil {
				return err
			}

			library, err := LoadTemplateLibrary(settings.Paths.Templates)
			if err != nil {
				return err
			}

			tracker, err := NewExpansionTracker(settings.Paths.State)
			if err != nil {
				return err
			}

			matcher := NewTemplateMatcher(settings.Matching.Threshold)
			classifier := NewScreenClassifier(matcher, library, settings.Matching.AmbiguityEpsilon)
			executor := NewExecutor(client, settings)
			machine := NewMachine(classifier, matcher, executor, library, tracker, settings)

			err = machine.Run(ctx)
			if errors.Is(err, context.Canceled) {
				LogInfo("Shutdown complete")
				return nil
			}
			return err
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Request a reset of all expansion completion marks",
		Long: "Drops the reset sentinel file. A running bot picks it up on its next\n" +
			"loop iteration; otherwise the reset applies when the bot next starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(cfgPath)
			if err != nil {
				return err
			}
			if err := os.WriteFile(settings.Paths.ResetFlag, nil, 0o644); err != nil {
				return fmt.Errorf("failed to create reset sentinel: %w", err)
			}
			fmt.Printf("Reset requested (%s created)\n", settings.Paths.ResetFlag)
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices visible to adb",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(cfgPath)
			if err != nil {
				return err
			}
			client := NewADBClient(settings.ADB)
			ctx, cancel := context.WithTimeout(context.Background(), settings.ADB.CommandTimeout)
			defer cancel()

			devices, err := client.Devices(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%-24s %s\n", d.Serial, d.State)
			}
			return nil
		},
	}
}

func captureCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one normalized screenshot to a PNG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndLog()
			if err != nil {
				return err
			}
			defer CloseLogger()

			client := NewADBClient(settings.ADB)
			ctx, cancel := context.WithTimeout(context.Background(), settings.ADB.CommandTimeout)
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return err
			}
			frame, err := client.Screenshot(ctx)
			if err != nil {
				return err
			}
			if err := savePNG(out, frame); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Printf("Saved %dx%d frame to %s\n", frame.Bounds().Dx(), frame.Bounds().Dy(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "screen.png", "output file")
	return cmd
}

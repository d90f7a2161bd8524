// Package cli builds the pedalcam command tree.
//
//	pedalcam run            start the pedal daemon and control panel
//	pedalcam auth           authorize cloud storage and verify the account
//	pedalcam devices        list attached HID devices
//	pedalcam check-camera   probe the camera, resetting the link if needed
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/pedalcam/internal/auth"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/cloud"
	"github.com/sweeney/pedalcam/internal/config"
	"github.com/sweeney/pedalcam/internal/pedal"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "pedalcam",
		Short: "Foot-pedal triggered DSLR capture with cloud upload",
		Long: `pedalcam watches a USB foot pedal and captures photos on a tethered camera.
A single press takes a photo; five presses within 20 seconds toggle timelapse
mode. Photos are filed under the active lab user and uploaded to Dropbox.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path (YAML)")
	pf.String("camera-model", "", "camera model passed to gphoto2")
	pf.Bool("sudo", false, "run the capture command with sudo")
	pf.String("work-dir", "", "directory gphoto2 downloads into")
	pf.String("photo-root", "", "local photo root")
	pf.String("users-dir", "", "lab user profile directory")
	pf.String("token-file", "", "persisted OAuth token file")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		return config.Load(configFile, cmd.Flags())
	}

	rootCmd.AddCommand(buildRunCommand(load))
	rootCmd.AddCommand(buildAuthCommand(load))
	rootCmd.AddCommand(buildDevicesCommand(pedal.ListDevices))
	rootCmd.AddCommand(buildCheckCameraCommand(load))

	return rootCmd
}

type loader func(cmd *cobra.Command) (*config.Config, error)

func buildRunCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the pedal daemon and control panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			return runDaemon(cmd.Context(), cfg, sigCh)
		},
	}

	f := cmd.Flags()
	f.String("http", "", `control panel address (e.g. ":8080", empty keeps config)`)
	f.String("broker", "", "MQTT broker address (e.g. tcp://192.168.1.200:1883)")
	f.Duration("heartbeat", 0, "heartbeat interval")
	f.Int("led-pin", 0, "BCM pin of the timelapse LED")
	f.Duration("timelapse", 0, "timelapse interval")
	f.Duration("debounce", 0, "capture debounce")
	f.Duration("check-interval", 0, "camera connectivity check interval")
	return cmd
}

func buildAuthCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Dropbox access and verify the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			mgr, err := newTokenManager(cfg, nil, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			token, err := mgr.Token(ctx)
			if err != nil {
				return err
			}
			acct, err := cloud.NewDropbox(false).VerifyAccount(ctx, token)
			if err != nil {
				return fmt.Errorf("%w: %w", auth.ErrAuthFailure, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Authorized as %s <%s>\n", acct.Name, acct.Email)
			if rec, err := mgr.Status(); err == nil && rec != nil {
				fmt.Fprintf(out, "Token expires %s\n", rec.Expiry().Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func buildDevicesCommand(list func() ([]pedal.DeviceInfo, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached HID devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := list()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No HID devices found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VID\tPID\tMANUFACTURER\tPRODUCT\tPATH\t")
			for _, d := range devices {
				mark := ""
				if d.VendorID == pedal.DefaultVendorID && d.ProductID == pedal.DefaultProductID {
					mark = "  <- pedal"
				}
				fmt.Fprintf(w, "%04x\t%04x\t%s\t%s\t%s\t%s\n", d.VendorID, d.ProductID, d.Manufacturer, d.Product, d.Path, mark)
			}
			return w.Flush()
		},
	}
}

func buildCheckCameraCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "check-camera",
		Short: "Probe the camera, resetting the USB link once if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			sigs, err := camera.LoadSignatures(cfg.Camera.SignaturesFile)
			if err != nil {
				return err
			}
			orch := camera.New(cameraConfig(cfg, sigs), camera.Deps{})

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Camera.CaptureTimeout+cfg.Camera.Settle)
			defer cancel()
			if !orch.CheckConnection(ctx) {
				return errors.New("camera not connected")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connected\n", cfg.Camera.Model)
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "otp",
	Short: "OpenTraceProbe - JTAG/SWD probe transport tool",
	Long: `OpenTraceProbe (otp) drives debug probes over bitbanged GPIO or the
ASCII-hex USB stream protocol.

Examples:
  otp jtag idcode                     # Read IDCODE over GPIO-bitbanged JTAG
  otp swd idcode                      # Read DPIDR over a USB hex-stream probe
  otp probes                          # List connected USB probes`,
	Version: "0.9.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

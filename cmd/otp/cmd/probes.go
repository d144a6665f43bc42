package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/transport"
	"github.com/spf13/cobra"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List connected USB probes",
	RunE:  runProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)

	probesCmd.Flags().Uint16Var(&probeVID, "vid", transport.DefaultVendorID,
		"probe USB vendor ID")
	probesCmd.Flags().Uint16Var(&probePID, "pid", transport.DefaultProductID,
		"probe USB product ID")
}

func runProbes(cmd *cobra.Command, args []string) error {
	devices, err := transport.EnumerateProbes(probeVID, probePID)
	if err != nil {
		return fmt.Errorf("enumeration failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No probes found")
		return nil
	}

	for i, dev := range devices {
		fmt.Printf("Probe %d: %s\n", i+1, dev.Description)
		fmt.Printf("  VID:PID: %04X:%04X\n", dev.VID, dev.PID)
		if dev.SerialNumber != "" {
			fmt.Printf("  Serial:  %s\n", dev.SerialNumber)
		}
	}

	return nil
}

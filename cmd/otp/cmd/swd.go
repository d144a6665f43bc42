package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/hexwire"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	probeVID uint16
	probePID uint16

	waitRetries int
)

var swdCmd = &cobra.Command{
	Use:   "swd",
	Short: "SWD operations over a USB hex-stream probe",
}

var swdIDCodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Switch the target to SWD and read the DPIDR register",
	Long: `Send the JTAG-to-SWD switch sequence followed by a line reset, then
read the debug port identification register (DPIDR, address 0x0).

Examples:
  otp swd idcode
  otp swd idcode --vid 0x2E8A --pid 0x0004`,
	RunE: runSWDIDCode,
}

func init() {
	rootCmd.AddCommand(swdCmd)
	swdCmd.AddCommand(swdIDCodeCmd)

	swdCmd.PersistentFlags().Uint16Var(&probeVID, "vid", transport.DefaultVendorID,
		"probe USB vendor ID")
	swdCmd.PersistentFlags().Uint16Var(&probePID, "pid", transport.DefaultProductID,
		"probe USB product ID")
	swdCmd.PersistentFlags().IntVar(&waitRetries, "wait-retries", swd.DefaultWaitRetries,
		"WAIT acknowledges tolerated per transaction before giving up")
}

func runSWDIDCode(cmd *cobra.Command, args []string) error {
	tr, err := transport.OpenUSB(probeVID, probePID)
	if err != nil {
		return fmt.Errorf("failed to open probe: %w", err)
	}
	defer tr.Close()

	engine := swd.NewEngine(hexwire.NewCodec(tr))
	engine.WaitRetries = waitRetries

	if err := engine.SwitchToSWD(); err != nil {
		return fmt.Errorf("switch to SWD failed: %w", err)
	}

	var dpidr uint32
	if err := engine.ReadReg(swd.MakeRequest(false, true, 0x0), &dpidr, 0); err != nil {
		return err
	}
	if err := engine.RunQueue(); err != nil {
		return fmt.Errorf("DPIDR read failed: %w", err)
	}

	fmt.Printf("DPIDR: %s\n", idcode.ParseDPIDR(dpidr))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/bitbang"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/hexwire"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
	"github.com/spf13/cobra"
)

var (
	pinTCK  uint8
	pinTMS  uint8
	pinTDI  uint8
	pinTDO  uint8
	pinTRST uint8
	pinSRST uint8

	srstPullsTRST bool
)

var jtagCmd = &cobra.Command{
	Use:   "jtag",
	Short: "Bitbanged JTAG operations over GPIO",
}

var jtagIDCodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Reset the TAP and read the 32-bit IDCODE register",
	Long: `Reset the TAP controller and shift out the device identification
register. After Test-Logic-Reset the ID register is selected between TDI and
TDO, so a 32-bit DR scan returns the IDCODE of the first device in the chain.

Examples:
  otp jtag idcode                                 # Default Raspberry Pi pinout
  otp jtag idcode --tck 11 --tms 25 --tdi 10 --tdo 9`,
	RunE: runJTAGIDCode,
}

func init() {
	rootCmd.AddCommand(jtagCmd)
	jtagCmd.AddCommand(jtagIDCodeCmd)

	jtagCmd.PersistentFlags().Uint8Var(&pinTCK, "tck", 11, "GPIO number for TCK")
	jtagCmd.PersistentFlags().Uint8Var(&pinTMS, "tms", 25, "GPIO number for TMS")
	jtagCmd.PersistentFlags().Uint8Var(&pinTDI, "tdi", 10, "GPIO number for TDI")
	jtagCmd.PersistentFlags().Uint8Var(&pinTDO, "tdo", 9, "GPIO number for TDO")
	jtagCmd.PersistentFlags().Uint8Var(&pinTRST, "trst", 0, "GPIO number for TRST (0 = not wired)")
	jtagCmd.PersistentFlags().Uint8Var(&pinSRST, "srst", 0, "GPIO number for SRST (0 = not wired)")
	jtagCmd.PersistentFlags().BoolVar(&srstPullsTRST, "srst-pulls-trst", false,
		"asserting SRST also asserts TRST")
}

func runJTAGIDCode(cmd *cobra.Command, args []string) error {
	drv, err := bitbang.NewRPIODriver(bitbang.RPIOPinout{
		TCK:  pinTCK,
		TMS:  pinTMS,
		TDI:  pinTDI,
		TDO:  pinTDO,
		TRST: pinTRST,
		SRST: pinSRST,
	})
	if err != nil {
		return fmt.Errorf("failed to open GPIO: %w", err)
	}
	defer drv.Close()

	engine := bitbang.NewEngine(drv, bitbang.Config{SRSTPullsTRST: srstPullsTRST})

	// Five TMS-high clocks force Test-Logic-Reset from any state and load the
	// ID register into the DR path.
	raw := make([]byte, 4)
	queue := []bitbang.Command{
		bitbang.RawTMSCommand([]byte{0x1F}, 5),
		bitbang.ScanCommand(false, bitbang.ScanIn, raw, 32, tap.StateRunTestIdle),
	}

	if err := engine.ExecuteQueue(queue); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	id := idcode.ParseIDCode(hexwire.GetBits(raw, 0, 32))
	fmt.Printf("IDCODE: %s\n", id)
	if !id.HasIDCode {
		fmt.Println("warning: ID register marker bit is clear; device may lack an IDCODE")
		return nil
	}

	info := deviceinfo.Lookup(id.Raw)
	fmt.Printf("Device: %s (%s)\n", info.Name, info.Description)
	if verbose && info.Core != "" {
		fmt.Printf("  Core:      %s\n", info.Core)
		if info.IRLength > 0 {
			fmt.Printf("  IR length: %d bits\n", info.IRLength)
		}
	}
	return nil
}

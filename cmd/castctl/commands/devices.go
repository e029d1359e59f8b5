package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	scanTimeoutMS      int
	scanIncludeUnreach bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List Chromecast receivers on the local network",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		devices, err := s.rt.Manager.ListDevices(s.ctx, scanTimeoutMS, scanIncludeUnreach)
		if err != nil {
			return err
		}
		if s.out.json {
			return json.NewEncoder(s.out.w).Encode(devices)
		}
		if len(devices) == 0 {
			s.out.linef("No devices found.")
			return nil
		}
		for _, dev := range devices {
			line := s.out.paint(ansiBold, dev.Name) + "  " + dev.Address + "  " + s.out.paint(ansiDim, dev.ID)
			if dev.Cached {
				line += "  (cached)"
			}
			s.out.linef("%s", line)
		}
		return nil
	}),
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeoutMS, "scan-ms", 5000, "Discovery window in milliseconds")
	scanCmd.Flags().BoolVar(&scanIncludeUnreach, "all", false, "Include unreachable and cached devices")
}

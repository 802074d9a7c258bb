package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-imgaccel/pkg/device"
	"github.com/emergingrobotics/go-imgaccel/pkg/driver"
)

func newBackendsCommand() *cobra.Command {
	return (&app{}).backendsCommand()
}

func (a *app) backendsCommand() *cobra.Command {
	var sysfsPath, devPath string

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List backends, their capabilities and hardware nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := device.NewScannerAt(sysfsPath, devPath)
			nodes, err := scanner.Scan()
			if err != nil {
				return fmt.Errorf("failed to scan for hardware: %w", err)
			}
			available, err := scanner.Available()
			if err != nil {
				return fmt.Errorf("failed to scan for hardware: %w", err)
			}
			hardware := make(map[driver.Backend]string)
			for _, n := range nodes {
				hardware[n.Backend] = n.Path
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Backend", "Engines", "Rescale", "Intermediate", "Interpolation", "Borders", "Round trip", "Hardware"})
			table.SetAutoWrapText(false)

			for _, b := range driver.Backends {
				caps, err := driver.CapabilitiesOf(b)
				if err != nil {
					return err
				}
				node := hardware[b]
				if node == "" {
					node = "-"
					if b == driver.BackendCPU {
						node = "host"
					}
				}
				table.Append([]string{
					b.String(),
					strconv.Itoa(caps.Engines),
					caps.Rescale.String(),
					caps.Intermediate.String(),
					joinStrings(caps.Interps),
					joinStrings(caps.Borders),
					"±" + strconv.Itoa(int(caps.RoundTripTolerance)),
					node,
				})
			}
			table.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "available: %s\n", available)
			fmt.Fprintf(cmd.OutOrStdout(), "devices: %s\n", strings.Join(device.Names(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&sysfsPath, "sysfs", "", "sysfs directory to scan")
	cmd.Flags().StringVar(&devPath, "dev", "", "device node directory to scan")
	cmd.Flags().MarkHidden("sysfs")
	cmd.Flags().MarkHidden("dev")
	return cmd
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}

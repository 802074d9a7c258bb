package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

func newResizeCommand() *cobra.Command {
	return (&app{}).resizeCommand()
}

func (a *app) resizeCommand() *cobra.Command {
	var (
		input, output string
		width, height int
		flags         transformFlags
	)

	cmd := &cobra.Command{
		Use:   "resize",
		Short: "Resize an image on the accelerator",
		Example: `  imgaccel resize -i in.png -o out.png -W 320 -H 240
  imgaccel resize -i in.jpg -o out.png -W 64 -H 64 --backend vic+cuda --interp nearest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 || height <= 0 {
				return fmt.Errorf("--width and --height must be positive, got %dx%d", width, height)
			}
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			img, err := readImage(input, format.RGB8)
			if err != nil {
				return err
			}

			p, mask, closeDev, err := a.pipeline(flags)
			if err != nil {
				return err
			}
			defer closeDev()

			ctx, cancel := a.syncContext(cmd.Context())
			defer cancel()

			out, err := p.Resize(ctx, img, width, height, mask)
			if err != nil {
				return err
			}
			if err := writeImage(output, out); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d -> %dx%d on %s\n",
				output, img.Width, img.Height, out.Width, out.Height, mask)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input image (png, jpeg, bmp, webp)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output image (png, jpeg or raw)")
	cmd.Flags().IntVarP(&width, "width", "W", 0, "target width")
	cmd.Flags().IntVarP(&height, "height", "H", 0, "target height")
	flags.add(cmd, true)
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-imgaccel/pkg/format"
)

func newConvertCommand() *cobra.Command {
	return (&app{}).convertCommand()
}

func (a *app) convertCommand() *cobra.Command {
	var (
		input, output string
		target        string
		flags         transformFlags
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an image to another pixel format",
		Example: `  imgaccel convert -i in.png -o gray.png --format u8
  imgaccel convert -i in.png -o out.raw --format bgr8 --backend cuda`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := format.Parse(target)
			if err != nil {
				return err
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

			out, err := p.ConvertFormat(ctx, img, f, mask)
			if err != nil {
				return err
			}
			if err := writeImage(output, out); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s on %s\n", output, img.Format, out.Format, mask)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input image (png, jpeg, bmp, webp)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output image (png, jpeg or raw)")
	cmd.Flags().StringVarP(&target, "format", "f", "rgb8", "target format: u8, rgb8, bgr8, rgba8, bgra8")
	flags.add(cmd, false)
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

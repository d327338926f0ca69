// Command rastercli runs the lake raster analyses over a local dataset
// folder and writes the results as JSON or PNG.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

type cli struct {
	Globals

	Dates      datesCmd      `cmd:"" help:"List the dated raster files of a dataset folder."`
	Occurrence occurrenceCmd `cmd:"" help:"Count per pixel how often values fall in a range."`
	Average    averageCmd    `cmd:"" help:"Per pixel mean of the stack values."`
	Sample     sampleCmd     `cmd:"" help:"Extract colour and concentration series at sampling points."`
	Enhance    enhanceCmd    `cmd:"" help:"Contrast-stretch a colour frame and highlight pale anomalies."`
	Reference  referenceCmd  `cmd:"" help:"Render the reference frame with sampling point markers."`
	Fetch      fetchCmd      `cmd:"" help:"Mirror a remote dataset folder over FTP."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("rastercli"),
		kong.Description("Batch analyses over dated satellite raster stacks of lakes."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&c.Globals),
	)

	if err := kctx.Run(); err != nil {
		stop()
		c.Globals.logger().Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

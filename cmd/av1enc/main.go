// Command av1enc encodes raw video and still images from the command line.
//
// Usage:
//
//	av1enc enc [options] <input.y4m | image...>   Y4M or BMP/TIFF/WebP/PNG/JPEG → IVF or MP4
//	av1enc info <input.ivf | input.mp4>           Display stream metadata
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/deepteams/av1"
	"github.com/deepteams/av1/container/ivf"
	"github.com/deepteams/av1/container/mp4"
	"github.com/deepteams/av1/internal/logging"
	"github.com/deepteams/av1/internal/y4m"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "av1enc: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "av1enc",
		Usage:   l10n.T("Encode video to an AV1-family bitstream"),
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Usage: l10n.T("Log level (debug, info, warn, error)")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output")},
		},
		Commands: []*cli.Command{
			{
				Name:      "enc",
				Usage:     l10n.T("Encode a Y4M stream or a sequence of images"),
				ArgsUsage: "<input.y4m | image...>",
				Flags:     encFlags(),
				Action:    runEnc,
			},
			{
				Name:      "info",
				Usage:     l10n.T("Display stream metadata"),
				ArgsUsage: "<input.ivf | input.mp4>",
				Action:    runInfo,
			},
		},
	}
}

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool("quiet") {
		return logging.NewNoop()
	}
	return logging.NewConsoleTo(logging.ParseLogLevel(c.String("log-level")), c.App.Writer, c.App.ErrWriter)
}

func encFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output path; .mp4 selects MP4, anything else IVF (default: <input>.ivf)")},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML option file; flags override it")},
		&cli.StringFlag{Name: "preset", Aliases: []string{"p"}, Usage: l10n.T("Preset (realtime, good, best)")},
		&cli.IntFlag{Name: "speed", Aliases: []string{"s"}, Usage: l10n.T("Speed 0-10, higher is faster")},
		&cli.StringFlag{Name: "rc", Usage: l10n.T("Rate control (cq, abr, cbr)")},
		&cli.IntFlag{Name: "q", Usage: l10n.T("Quantizer index 0-255 for cq")},
		&cli.IntFlag{Name: "min-q", Usage: l10n.T("Minimum quantizer index")},
		&cli.IntFlag{Name: "max-q", Usage: l10n.T("Maximum quantizer index")},
		&cli.Int64Flag{Name: "bitrate", Aliases: []string{"b"}, Usage: l10n.T("Target bitrate in bits per second")},
		&cli.IntFlag{Name: "buffer-ms", Usage: l10n.T("Decoder buffer size in milliseconds")},
		&cli.IntFlag{Name: "tile-cols", Usage: l10n.T("Tile columns")},
		&cli.IntFlag{Name: "tile-rows", Usage: l10n.T("Tile rows")},
		&cli.IntFlag{Name: "tile-workers", Usage: l10n.T("Parallel tile workers (0 = number of CPUs)")},
		&cli.IntFlag{Name: "frame-workers", Usage: l10n.T("Parallel frame workers (0 = 1)")},
		&cli.IntFlag{Name: "keyint", Usage: l10n.T("Maximum key frame interval")},
		&cli.IntFlag{Name: "mini-gop", Usage: l10n.T("Mini-GOP size")},
		&cli.IntFlag{Name: "refs", Usage: l10n.T("Reference frames 1-7")},
		&cli.IntFlag{Name: "lookahead", Usage: l10n.T("Pictures held for scene-cut detection")},
		&cli.BoolFlag{Name: "deltaq", Usage: l10n.T("Adapt the quantizer per superblock")},
		&cli.BoolFlag{Name: "no-deblock", Usage: l10n.T("Disable the deblocking filter")},
		&cli.BoolFlag{Name: "no-cdef", Usage: l10n.T("Disable CDEF")},
		&cli.BoolFlag{Name: "no-restoration", Usage: l10n.T("Disable loop restoration")},
		&cli.StringFlag{Name: "stats-out", Usage: l10n.T("Write first-pass statistics to this file")},
		&cli.StringFlag{Name: "stats-in", Usage: l10n.T("Read first-pass statistics from this file")},
		&cli.StringFlag{Name: "recon", Usage: l10n.T("Write the reconstruction to this Y4M file")},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: l10n.T("Encode at most this many pictures")},
		&cli.StringFlag{Name: "fps", Value: "30/1", Usage: l10n.T("Frame rate of image inputs")},
		&cli.IntFlag{Name: "bit-depth", Value: 8, Usage: l10n.T("Bit depth of image inputs (8, 10, 12)")},
		&cli.StringFlag{Name: "subsampling", Value: "420", Usage: l10n.T("Chroma subsampling of image inputs (420, 422, 444, mono)")},
	}
}

// encoderOptions starts from the config file or preset and applies the
// flags the user set.
func encoderOptions(c *cli.Context) (*av1.EncoderOptions, error) {
	if c.IsSet("config") && c.IsSet("preset") {
		return nil, errors.New("--config and --preset are exclusive; set preset in the file")
	}
	var (
		opts *av1.EncoderOptions
		err  error
	)
	switch {
	case c.IsSet("config"):
		opts, err = av1.LoadOptions(c.String("config"))
	case c.IsSet("preset"):
		opts, err = av1.OptionsForPreset(av1.Preset(c.String("preset")))
	default:
		opts = av1.DefaultOptions()
	}
	if err != nil {
		return nil, err
	}
	if c.IsSet("rc") {
		rc, err := av1.ParseRateControl(c.String("rc"))
		if err != nil {
			return nil, err
		}
		opts.RateControl = rc
	}
	ints := []struct {
		flag string
		dst  *int
	}{
		{"speed", &opts.Speed},
		{"q", &opts.QIndex},
		{"min-q", &opts.MinQIndex},
		{"max-q", &opts.MaxQIndex},
		{"buffer-ms", &opts.BufferMs},
		{"tile-cols", &opts.TileCols},
		{"tile-rows", &opts.TileRows},
		{"tile-workers", &opts.TileWorkers},
		{"frame-workers", &opts.FrameWorkers},
		{"keyint", &opts.KeyframeInterval},
		{"mini-gop", &opts.MiniGOP},
		{"refs", &opts.RefFrames},
		{"lookahead", &opts.Lookahead},
	}
	for _, f := range ints {
		if c.IsSet(f.flag) {
			*f.dst = c.Int(f.flag)
		}
	}
	if c.IsSet("bitrate") {
		opts.TargetBitrate = c.Int64("bitrate")
	}
	if c.IsSet("deltaq") {
		opts.DeltaQ = c.Bool("deltaq")
	}
	if c.Bool("no-deblock") {
		opts.Deblock = false
	}
	if c.Bool("no-cdef") {
		opts.CDEF = false
	}
	if c.Bool("no-restoration") {
		opts.Restoration = false
	}
	if c.IsSet("stats-out") {
		opts.StatsOut = c.String("stats-out")
	}
	if c.IsSet("stats-in") {
		opts.StatsIn = c.String("stats-in")
	}
	return opts, nil
}

func outputPath(c *cli.Context, input string) string {
	if p := c.String("output"); p != "" {
		return p
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return base + ".ivf"
}

func newPackager(path string, w io.Writer, enc *av1.Encoder) (av1.Packager, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return mp4.NewWriter(w, enc.Sequence(), mp4.Header{ConfigOBUs: enc.SequenceHeader(), Profile: enc.Profile()})
	}
	return ivf.NewWriter(w, enc.Sequence())
}

func runEnc(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New(l10n.T("enc: missing input file"))
	}
	log := newLogger(c)
	opts, err := encoderOptions(c)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	src, err := openSource(c)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	defer src.Close()
	seq := src.Sequence()
	log.Info("reading %s (%dx%d, %d-bit %s)", c.Args().First(), seq.Width, seq.Height, seq.BitDepth, seq.Subsampling)

	options := []av1.Option{av1.WithLogger(log)}
	if c.IsSet("recon") {
		options = append(options, av1.WithRecon())
	}
	enc, err := av1.NewEncoder(seq, opts, options...)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	defer enc.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, finishing the current frames...")
			cancel()
		case <-ctx.Done():
		}
	}()

	outPath := outputPath(c, c.Args().First())
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := encodeTo(ctx, c, out, outPath, src, enc); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("enc: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return err
	}
	log.Info("wrote %s", outPath)
	if opts.StatsOut != "" {
		log.Info("wrote first-pass statistics to %s", opts.StatsOut)
	}
	return nil
}

func encodeTo(ctx context.Context, c *cli.Context, out io.Writer, outPath string, src source, enc *av1.Encoder) error {
	pk, err := newPackager(outPath, out, enc)
	if err != nil {
		return err
	}
	var recon *reconWriter
	if c.IsSet("recon") {
		recon, err = newReconWriter(c.String("recon"), enc.Sequence())
		if err != nil {
			return err
		}
		defer recon.Close()
	}
	write := func(pkts []av1.Packet) error {
		for _, p := range pkts {
			if err := pk.WritePacket(p); err != nil {
				return err
			}
			if recon != nil && p.Recon != nil {
				if err := recon.Write(p.Recon); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := pump(ctx, src, enc, c.Int("limit"), write); err != nil {
		return err
	}
	if err := pk.Close(); err != nil {
		return err
	}
	if recon != nil {
		return recon.Close()
	}
	return nil
}

// pump feeds up to limit pictures (all when limit <= 0) from src to enc
// and flushes it. Once ctx is cancelled no further picture is read, but
// the pictures already accepted are still coded and written.
func pump(ctx context.Context, src source, enc *av1.Encoder, limit int, write func([]av1.Packet) error) error {
	coding := context.WithoutCancel(ctx)
	den := int64(enc.Sequence().FrameRate.Den)
	for i := int64(0); limit <= 0 || i < int64(limit); i++ {
		if ctx.Err() != nil {
			break
		}
		pic, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		pic.DisplayIndex = i
		pic.PTS = i * den
		pkts, err := enc.Encode(coding, pic)
		if err != nil {
			return err
		}
		if err := write(pkts); err != nil {
			return err
		}
	}
	pkts, err := enc.Flush(coding)
	if err != nil {
		return err
	}
	return write(pkts)
}

// reconWriter writes reconstructed pictures as Y4M.
type reconWriter struct {
	f *os.File
	w *y4m.Writer
}

func newReconWriter(path string, seq av1.SequenceParams) (*reconWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := y4m.NewWriter(f, y4mHeader(seq))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &reconWriter{f: f, w: w}, nil
}

func (r *reconWriter) Write(p *av1.Picture) error { return r.w.Write(p.Planes, p.Stride) }

// Close flushes and closes the file; later calls are no-ops.
func (r *reconWriter) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.w.Flush()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.f = nil
	return err
}

package av1_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/deepteams/av1"
	"github.com/deepteams/av1/container/ivf"
)

func ExampleNewEncoder() {
	seq := av1.SequenceParams{Width: 64, Height: 48, BitDepth: 8}
	opts := av1.DefaultOptions()
	opts.Speed = 9
	enc, err := av1.NewEncoder(seq, opts)
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx := context.Background()
	var pkts []av1.Packet
	for i := 0; i < 3; i++ {
		pic := av1.NewPicture(seq)
		for p := 0; p < seq.NumPlanes(); p++ {
			for j := range pic.Planes[p] {
				pic.Planes[p][j] = uint16(64 + (j+i)%128)
			}
		}
		pic.DisplayIndex = int64(i)
		out, err := enc.Encode(ctx, pic)
		if err != nil {
			fmt.Println(err)
			return
		}
		pkts = append(pkts, out...)
	}
	out, err := enc.Flush(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	pkts = append(pkts, out...)
	fmt.Printf("packets: %d, first: %s\n", len(pkts), pkts[0].FrameType)
	// Output:
	// packets: 3, first: key
}

func ExampleOptionsForPreset() {
	opts, err := av1.OptionsForPreset(av1.PresetRealtime)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(opts.Speed, opts.MiniGOP, opts.RateControl)
	// Output:
	// 10 1 cq
}

func ExamplePackager() {
	seq := av1.SequenceParams{Width: 32, Height: 32, BitDepth: 8, FrameRate: av1.Rational{Num: 25, Den: 1}}
	enc, err := av1.NewEncoder(seq, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	var buf bytes.Buffer
	var pk av1.Packager
	if pk, err = ivf.NewWriter(&buf, seq); err != nil {
		fmt.Println(err)
		return
	}
	pkts, err := enc.Encode(context.Background(), av1.NewPicture(seq))
	if err != nil {
		fmt.Println(err)
		return
	}
	more, err := enc.Flush(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, p := range append(pkts, more...) {
		if err := pk.WritePacket(p); err != nil {
			fmt.Println(err)
			return
		}
	}
	if err := pk.Close(); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(buf.Bytes()[:4]))
	// Output:
	// DKIF
}

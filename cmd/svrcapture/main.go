// Command svrcapture is a standalone harness for the capture core: it
// drives ProcState against a synthetic frame source instead of a real
// game's render loop, exercising the same give_frame/give_audio/end
// sequence a host would, grounded on the original game_standalone.cpp
// entrypoint's role (a process that owns the capture core outside of any
// particular game binary).
package main

import (
	"fmt"
	"os"

	"github.com/bakapear/svrcore/internal/capture"
	"github.com/bakapear/svrcore/internal/corelog"
	"github.com/bakapear/svrcore/internal/gpu"
	"github.com/bakapear/svrcore/internal/ipc"
	"github.com/spf13/cobra"
)

// frameSource abstracts synthetic frame generation so the record command
// doesn't care whether it's running against the headless backend (the
// supported case) or a real device (which has no synthetic injection
// path, see backend_vulkan.go).
type frameSource interface {
	Next(i int) (gpu.Handle, error)
	Close()
}

var (
	resourceRoot string
	profilesDir  string
	profileName  string
	dest         string
	encoderPath  string
	codecFlag    string
	width        int
	height       int
	frames       int
	pattern      string
	audioOn      bool
	channels     int
	rate         int
	bits         int
	encoderHost  string
)

var rootCmd = &cobra.Command{
	Use:   "svrcapture",
	Short: "Standalone driver for the real-time capture core",
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Drive a synthetic recording through the capture pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord()
	},
}

func init() {
	recordCmd.Flags().StringVar(&resourceRoot, "resource-root", ".", "directory for logs and profiles")
	recordCmd.Flags().StringVar(&profilesDir, "profiles-dir", "", "profile directory (defaults to resource-root)")
	recordCmd.Flags().StringVar(&profileName, "profile", "default", "profile name to load")
	recordCmd.Flags().StringVar(&dest, "dest", "out.mp4", "destination movie file")
	recordCmd.Flags().StringVar(&encoderPath, "encoder", "cat", "external encoder binary (CodecExternalPipe)")
	recordCmd.Flags().StringVar(&codecFlag, "codec", "pipe", "encoder variant: pipe or twoprocess")
	recordCmd.Flags().IntVar(&width, "width", 64, "synthetic frame width")
	recordCmd.Flags().IntVar(&height, "height", 64, "synthetic frame height")
	recordCmd.Flags().IntVar(&frames, "frames", 60, "number of frames to push")
	recordCmd.Flags().StringVar(&pattern, "pattern", "grey", "synthetic pattern: grey, bars, mosample-check")
	recordCmd.Flags().BoolVar(&audioOn, "audio", false, "push synthetic audio alongside video")
	recordCmd.Flags().IntVar(&channels, "channels", 2, "audio channels")
	recordCmd.Flags().IntVar(&rate, "rate", 44100, "audio sample rate")
	recordCmd.Flags().IntVar(&bits, "bits", 16, "audio bit depth")
	recordCmd.Flags().StringVar(&encoderHost, "encoder-host", "svrencoder", "sibling encoder binary path (CodecTwoProcess)")

	rootCmd.AddCommand(recordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRecord() error {
	if profilesDir == "" {
		profilesDir = resourceRoot
	}

	codec := capture.CodecExternalPipe
	if codecFlag == "twoprocess" {
		codec = capture.CodecTwoProcess
	}

	backend, cleanupBackend, err := newBackend()
	if err != nil {
		return err
	}
	defer cleanupBackend()

	ps, err := capture.Init(resourceRoot, profilesDir, backend)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer ps.Shutdown()

	ps.SetExternalEncoder(encoderPath, os.Stderr)
	ps.SetEncoderSpawnConfig(ipc.SpawnConfig{EncoderPath: encoderHost, ResourceRoot: resourceRoot})

	audio := capture.AudioParams{Enabled: audioOn, Channels: channels, Rate: rate, Bits: bits}
	if err := ps.Start(dest, profileName, width, height, codec, audio); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	source, err := newFrameSource(backend, width, height, pattern)
	if err != nil {
		return err
	}
	defer source.Close()

	sampleBatch := make([]int16, channels*256)

	for i := 0; i < frames; i++ {
		tex, err := source.Next(i)
		if err != nil {
			return fmt.Errorf("generating frame %d: %w", i, err)
		}
		if err := ps.NewVideoFrame(tex); err != nil {
			corelog.L().Error("give_frame failed, stopping early", "frame", i, "err", err)
			break
		}
		if audioOn {
			if err := ps.NewAudioSamples(sampleBatch); err != nil {
				corelog.L().Error("give_audio failed", "frame", i, "err", err)
			}
		}
	}

	if err := ps.End(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	fmt.Printf("wrote %s (%d frames requested)\n", dest, frames)
	return nil
}

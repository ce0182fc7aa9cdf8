//go:build windows

// Command svrencoder is the two-process variant's sibling process: it is
// never run directly by a user, only spawned by svrcapture (or a real
// game host) with the shared-memory mapping handle as its sole argv
// value, per internal/ipc's protocol (originally
// original_source/src/svr_game/proc_encoder.cpp's encoder_main).
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"unsafe"

	"github.com/bakapear/svrcore/internal/corelog"
	"github.com/bakapear/svrcore/internal/ipc"
	"golang.org/x/sys/windows"
)

func main() {
	closer, err := corelog.Init(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, "svrencoder: logging init:", err)
		os.Exit(1)
	}
	defer closer()

	if len(os.Args) != 2 {
		corelog.L().Error("svrencoder: expected the shared memory handle as argv[1]")
		os.Exit(1)
	}
	handleValue, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		corelog.L().Error("svrencoder: invalid handle argument", corelog.KeyReason, err)
		os.Exit(1)
	}
	mapHandle := windows.Handle(handleValue)

	view, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(ipc.SharedMemSize))
	if err != nil {
		corelog.L().Error("svrencoder: MapViewOfFile failed", corelog.KeyReason, err)
		os.Exit(1)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(view)), ipc.SharedMemSize)

	gameWakeEvent := windows.Handle(binary.LittleEndian.Uint32(data[ipc.OffGameWakeEvent:]))
	encoderWakeEvent := windows.Handle(binary.LittleEndian.Uint32(data[ipc.OffEncoderWake:]))

	var videoFrames, audioSamples uint64

	for {
		if _, err := windows.WaitForSingleObject(encoderWakeEvent, windows.INFINITE); err != nil {
			corelog.L().Error("svrencoder: WaitForSingleObject failed", corelog.KeyReason, err)
			os.Exit(1)
		}

		event := ipc.EventType(binary.LittleEndian.Uint32(data[ipc.OffEventType:]))
		var handlerErr error

		switch event {
		case ipc.EventStart:
			corelog.L().Info("svrencoder: recording started")

		case ipc.EventNewVideo:
			// A full port reads the shared keyed-mutex-guarded texture
			// here (AcquireKeyedMutex(ENCODER), read pixels, encode,
			// ReleaseKeyedMutex) via its own RenderBackend opened against
			// the same shared handle. Cross-process shared-texture
			// opening has no portable Go binding in this module's
			// dependency set, so this harness only accounts for the
			// frame and acknowledges it; see DESIGN.md.
			videoFrames++

		case ipc.EventNewAudio:
			waiting := binary.LittleEndian.Uint32(data[ipc.OffWaitingAudio:])
			offset := binary.LittleEndian.Uint32(data[ipc.OffAudioOffset:])
			audioSamples += uint64(waiting)
			_ = offset // sample payload itself is not persisted by this harness

		case ipc.EventStop:
			corelog.L().Info("svrencoder: recording stopped",
				"video_frames", videoFrames, "audio_samples", audioSamples)
			binary.LittleEndian.PutUint32(data[ipc.OffError:], 0)
			windows.SetEvent(gameWakeEvent)
			windows.UnmapViewOfFile(view)
			return

		default:
			handlerErr = fmt.Errorf("svrencoder: unknown event type %d", event)
		}

		if handlerErr != nil {
			corelog.L().Error("svrencoder: event handling failed", corelog.KeyReason, handlerErr)
			binary.LittleEndian.PutUint32(data[ipc.OffError:], 1)
			msg := handlerErr.Error()
			n := copy(data[ipc.OffErrorMessage:ipc.OffErrorMessage+ipc.ErrorMessageLen-1], msg)
			data[ipc.OffErrorMessage+n] = 0
		} else {
			binary.LittleEndian.PutUint32(data[ipc.OffError:], 0)
		}
		binary.LittleEndian.PutUint32(data[ipc.OffEventType:], 0)
		windows.SetEvent(gameWakeEvent)
	}
}

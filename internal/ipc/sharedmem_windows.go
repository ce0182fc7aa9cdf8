//go:build windows

package ipc

import (
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsControlPlane is the real shared-memory/event transport: it
// CreateFileMappingA's an inheritable region, MapViewOfFile's it, creates
// two auto-reset events, and spawns the encoder child with the mapping
// handle passed as an inherited argv integer — all directly grounded on
// original_source/src/svr_game/proc_encoder.cpp's encoder_create_shared_mem
// / encoder_send_event.
type windowsControlPlane struct {
	mu sync.Mutex

	mapHandle windows.Handle
	view      uintptr
	data      []byte

	gameWakeEvent    windows.Handle
	encoderWakeEvent windows.Handle
	encoderProcess   windows.Handle
}

// Open creates the shared memory region, maps it, creates the wake events,
// and spawns the encoder child process per SpawnConfig once the handles it
// inherits are in place. The child is started directly; it is not created
// suspended and later resumed.
func Open(cfg SpawnConfig) (ControlPlane, error) {
	sa := &windows.SecurityAttributes{
		Length:        uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		InheritHandle: 1,
	}

	mapHandle, err := windows.CreateFileMapping(windows.InvalidHandle, sa, windows.PAGE_READWRITE, 0, uint32(SharedMemSize), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: CreateFileMapping: %v", ErrSetupFailed, err)
	}

	view, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(SharedMemSize))
	if err != nil {
		windows.CloseHandle(mapHandle)
		return nil, fmt.Errorf("%w: MapViewOfFile: %v", ErrSetupFailed, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(view)), SharedMemSize)
	for i := range data {
		data[i] = 0
	}

	gameWake, err := windows.CreateEvent(sa, 0, 0, nil) // auto-reset, initially non-signalled
	if err != nil {
		windows.UnmapViewOfFile(view)
		windows.CloseHandle(mapHandle)
		return nil, fmt.Errorf("%w: CreateEventA(game_wake): %v", ErrSetupFailed, err)
	}
	encoderWake, err := windows.CreateEvent(sa, 0, 0, nil)
	if err != nil {
		windows.CloseHandle(gameWake)
		windows.UnmapViewOfFile(view)
		windows.CloseHandle(mapHandle)
		return nil, fmt.Errorf("%w: CreateEventA(encoder_wake): %v", ErrSetupFailed, err)
	}

	cp := &windowsControlPlane{
		mapHandle:        mapHandle,
		view:             view,
		data:             data,
		gameWakeEvent:    gameWake,
		encoderWakeEvent: encoderWake,
	}

	binary.LittleEndian.PutUint32(data[OffGamePID:], uint32(windows.GetCurrentProcessId()))
	binary.LittleEndian.PutUint32(data[OffGameWakeEvent:], uint32(gameWake))
	binary.LittleEndian.PutUint32(data[OffEncoderWake:], uint32(encoderWake))

	// Child process startup: the shared memory handle value is passed as
	// an argv integer; the child inherits it (and the two event handles)
	// because sa.InheritHandle was set on every CreateX call above and
	// os/exec is given them as its explicit inherited-handle list.
	cmd := exec.Command(cfg.EncoderPath, strconv.FormatUint(uint64(mapHandle), 10))
	cmd.Dir = cfg.ResourceRoot
	cmd.SysProcAttr = &syscall.SysProcAttr{
		AdditionalInheritedHandles: []syscall.Handle{
			syscall.Handle(mapHandle), syscall.Handle(gameWake), syscall.Handle(encoderWake),
		},
	}
	if err := cmd.Start(); err != nil {
		cp.Close()
		return nil, fmt.Errorf("%w: spawning encoder process: %v", ErrSetupFailed, err)
	}
	procHandle, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(cmd.Process.Pid))
	if err != nil {
		cp.Close()
		return nil, fmt.Errorf("%w: OpenProcess(encoder): %v", ErrSetupFailed, err)
	}
	cp.encoderProcess = procHandle

	return cp, nil
}

// SendEvent implements ControlPlane.SendEvent: write event_type, signal the
// encoder, then WaitForMultipleObjects on {encoder process, game wake
// event}. If the process handle is what woke the wait, the encoder has
// exited; otherwise shared.error is checked for a command-level failure.
func (cp *windowsControlPlane) SendEvent(event EventType) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	binary.LittleEndian.PutUint32(cp.data[OffEventType:], uint32(event))
	if err := windows.SetEvent(cp.encoderWakeEvent); err != nil {
		return fmt.Errorf("ipc: SetEvent(encoder_wake): %w", err)
	}

	handles := []windows.Handle{cp.encoderProcess, cp.gameWakeEvent}
	idx, err := waitForMultipleObjects(handles, false, windows.INFINITE)
	if err != nil {
		return fmt.Errorf("ipc: WaitForMultipleObjects: %w", err)
	}
	if idx == 0 {
		return ErrEncoderCrashed
	}

	if errCode := binary.LittleEndian.Uint32(cp.data[OffError:]); errCode != 0 {
		msg := nullTerminatedString(cp.data[OffErrorMessage : OffErrorMessage+ErrorMessageLen])
		return fmt.Errorf("ipc: encoder reported error %d: %s", errCode, msg)
	}
	return nil
}

func (cp *windowsControlPlane) WriteAudio(samples []int16) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(samples) > EncoderMaxSamples {
		return fmt.Errorf("ipc: audio batch %d exceeds ENCODER_MAX_SAMPLES %d", len(samples), EncoderMaxSamples)
	}
	off := OffAudioBuffer
	for i, s := range samples {
		binary.LittleEndian.PutUint16(cp.data[off+i*2:], uint16(s))
	}
	binary.LittleEndian.PutUint32(cp.data[OffWaitingAudio:], uint32(len(samples)))
	binary.LittleEndian.PutUint32(cp.data[OffAudioOffset:], uint32(OffAudioBuffer))
	return nil
}

func (cp *windowsControlPlane) SharedTexture() uintptr {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return uintptr(binary.LittleEndian.Uint32(cp.data[OffTexHandle:]))
}

func (cp *windowsControlPlane) Close() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.encoderProcess != 0 {
		windows.CloseHandle(cp.encoderProcess)
	}
	if cp.encoderWakeEvent != 0 {
		windows.CloseHandle(cp.encoderWakeEvent)
	}
	if cp.gameWakeEvent != 0 {
		windows.CloseHandle(cp.gameWakeEvent)
	}
	if cp.view != 0 {
		windows.UnmapViewOfFile(cp.view)
	}
	if cp.mapHandle != 0 {
		windows.CloseHandle(cp.mapHandle)
	}
	return nil
}

func waitForMultipleObjects(handles []windows.Handle, waitAll bool, timeoutMS uint32) (int, error) {
	event, err := windows.WaitForMultipleObjects(handles, waitAll, timeoutMS)
	if err != nil {
		return 0, err
	}
	return int(event), nil
}

func nullTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

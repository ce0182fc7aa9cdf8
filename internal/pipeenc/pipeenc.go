// Package pipeenc implements the single-process encoder variant
// (component H): an external codec process run via a stdin pipe, fed by an
// internal producer/consumer worker that decouples GPU readback from the
// (potentially blocking) pipe write.
package pipeenc

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/bakapear/svrcore/internal/spsc"
)

// DefaultPoolSize is K, the default pre-allocated send-buffer pool size
// (spec.md §3's FfmpegSendBuf "bounded pool of size K (default 8)").
const DefaultPoolSize = 8

// sendBuf is a pinned host memory block reused across frames: exactly one
// of free-pool, readable-by-readback or writable-by-encoder at a time, per
// spec.md §3.
type sendBuf struct {
	data []byte
	used int
}

// EncoderSink is spec.md §9's capability trait selected per MovieParams
// codec choice. PipeEncoder implements the external-process variant. The
// two-process variant is internal/capture's twoProcessSink (built on
// internal/ipc's ControlPlane), which implements capture.EncoderSink
// rather than this interface.
type EncoderSink interface {
	PushFrame(data []byte) error
	PushAudio(samples []int16) error
	End() error
}

// PipeEncoder runs an external codec CLI, writing converted frames to its
// stdin through a bounded write/read queue pair so a slow pipe write never
// blocks the GPU readback stage directly.
type PipeEncoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	pool  []*sendBuf

	writeQueue *spsc.Queue[*sendBuf]
	writeSem   *spsc.Semaphore
	readQueue  *spsc.Queue[*sendBuf]
	readSem    *spsc.Semaphore
	// readReadySem gates readQueue itself: released by workerLoop right
	// after each Push, (Try)Acquired by tryReclaimOne right before each
	// Pull, so the two goroutines never touch readQueue's head/tail/count
	// without the paired semaphore spsc.Queue's contract requires.
	readReadySem *spsc.Semaphore

	workerDone chan struct{}
	workerErr  error
	mu         sync.Mutex
}

// Start launches the codec process (argv already built by the caller from
// profile quality knobs) with a stdin pipe, and starts the pipe-writer
// worker goroutine. bufSize must be at least the largest frame that will
// ever be pushed.
func Start(name string, args []string, stdout io.Writer, bufSize, poolSize int) (*PipeEncoder, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeenc: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeenc: start %s: %w", name, err)
	}

	e := &PipeEncoder{
		cmd:          cmd,
		stdin:        stdin,
		writeQueue:   spsc.NewQueue[*sendBuf](poolSize),
		writeSem:     spsc.NewSemaphore(0, poolSize),
		readQueue:    spsc.NewQueue[*sendBuf](poolSize),
		readSem:      spsc.NewSemaphore(poolSize, poolSize),
		readReadySem: spsc.NewSemaphore(0, poolSize),
		workerDone:   make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		e.pool = append(e.pool, &sendBuf{data: make([]byte, bufSize)})
	}

	go e.workerLoop()
	return e, nil
}

// workerLoop is the pipe-writer thread: acquire write_sem, pull a buffer,
// synchronously write it to the pipe, push to read_queue, release
// readReadySem. A nil sentinel terminates the loop, per spec.md §4.H.
func (e *PipeEncoder) workerLoop() {
	defer close(e.workerDone)
	for {
		e.writeSem.Acquire()
		buf := e.writeQueue.Pull()
		if buf == nil {
			return
		}
		if _, err := e.stdin.Write(buf.data[:buf.used]); err != nil {
			e.mu.Lock()
			e.workerErr = fmt.Errorf("pipeenc: pipe write: %w", err)
			e.mu.Unlock()
			return
		}
		e.readQueue.Push(buf)
		e.readReadySem.Release()
		// readSem (the free-buffer count) is released separately by
		// tryReclaimOne once the caller has actually pulled the buffer back
		// off readQueue, matching the K-buffer ownership states in spec.md §3.
	}
}

// reclaim returns a buffer that has finished its pipe write back to the
// free pool, releasing a slot for the next PushFrame.
func (e *PipeEncoder) reclaim() {
	for e.tryReclaimOne() {
	}
}

func (e *PipeEncoder) tryReclaimOne() bool {
	// Non-blocking drain of anything the worker has finished writing.
	// readReadySem is the paired semaphore for readQueue itself: acquiring
	// it here is what makes the following Pull safe against workerLoop's
	// concurrent Push.
	if !e.readReadySem.TryAcquire() {
		return false
	}
	buf := e.readQueue.Pull()
	e.pool = append(e.pool, buf)
	e.readSem.Release()
	return true
}

// acquireFreeBuf blocks until a send buffer is available, preferring one
// reclaimed from a finished pipe write.
func (e *PipeEncoder) acquireFreeBuf() *sendBuf {
	e.reclaim()
	e.readSem.Acquire()
	buf := e.pool[len(e.pool)-1]
	e.pool = e.pool[:len(e.pool)-1]
	return buf
}

// PushFrame copies data into a free send buffer and hands it to the
// pipe-writer worker.
func (e *PipeEncoder) PushFrame(data []byte) error {
	e.mu.Lock()
	if e.workerErr != nil {
		err := e.workerErr
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	buf := e.acquireFreeBuf()
	if len(data) > len(buf.data) {
		return fmt.Errorf("pipeenc: frame %d bytes exceeds buffer capacity %d", len(data), len(buf.data))
	}
	n := copy(buf.data, data)
	buf.used = n
	e.writeQueue.Push(buf)
	e.writeSem.Release()
	return nil
}

// PushAudio always returns an error for the external-pipe codec variant
// in this implementation: audio for the single-process path is written to a
// sibling WAV file by internal/audiosink, not interleaved into the video
// pipe, matching spec.md §9 Open Question 2's "exactly one audio sink is
// active per recording" reading.
func (e *PipeEncoder) PushAudio(samples []int16) error {
	return fmt.Errorf("pipeenc: PushAudio not supported by the external-pipe encoder; use internal/audiosink")
}

// End pushes the nil sentinel, joins the worker, closes the pipe and waits
// for the child process, per spec.md §4.H's orderly shutdown.
func (e *PipeEncoder) End() error {
	e.reclaim()
	// Ensure no frame is still in flight owned by the caller before
	// sending the sentinel: wait until every buffer we handed out has come
	// back through readQueue at least once.
	for len(e.pool) < cap(e.pool) {
		if !e.tryReclaimOne() {
			break
		}
	}
	e.writeQueue.Push(nil)
	e.writeSem.Release()
	<-e.workerDone

	if err := e.stdin.Close(); err != nil {
		return fmt.Errorf("pipeenc: close stdin: %w", err)
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("pipeenc: encoder process: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workerErr
}

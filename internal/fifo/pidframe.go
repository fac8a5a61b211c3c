package fifo

import "encoding/binary"

// pidFrameSize is the width of one SF_FIN_FIFO frame: a native pid_t,
// modeled here as a fixed 4-byte little-endian integer (spec §4.6:
// "fixed-size frames of sizeof(pid_t) with the worker's pid").
const pidFrameSize = 4

// PidWriter writes SF_FIN_FIFO frames: a worker posts its own pid when
// it finishes so D can reap it promptly (spec §4.3 step: "write worker
// pid onto SF_FIN_FIFO so D reaps promptly").
type PidWriter struct {
	p *Pipe
}

func NewPidWriter(p *Pipe) *PidWriter { return &PidWriter{p: p} }

func (w *PidWriter) WritePID(pid int32) error {
	var buf [pidFrameSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(pid))
	_, err := w.p.Write(buf[:])
	return err
}

// PidReader reads fixed-size SF_FIN_FIFO frames, buffering a partial
// frame across read() calls the same way CommandReader buffers
// partial opcode arguments.
type PidReader struct {
	r *bufReader
}

func NewPidReader(p *Pipe) *PidReader { return &PidReader{r: newBufReader(p.file)} }

// NextPID blocks until one full pid frame has arrived.
func (r *PidReader) NextPID() (int32, error) {
	for len(r.r.buf) < pidFrameSize {
		if err := r.r.fill(); err != nil {
			return 0, err
		}
	}
	pid := int32(binary.LittleEndian.Uint32(r.r.buf[:pidFrameSize]))
	r.r.consume(pidFrameSize)
	return pid, nil
}

package fifo

import "encoding/binary"

// trlFrameSize is the width of one TRL_CALC_FIFO frame: a native int,
// modeled as a fixed 4-byte little-endian integer carrying an FSA
// position (spec §4.6: "sizeof(int) FSA position; recomputes per-host
// rate-limit budget division").
const trlFrameSize = 4

// TRLWriter posts an FSA position onto TRL_CALC_FIFO whenever a
// host's configured rate limit or active-transfer count changes.
type TRLWriter struct {
	p *Pipe
}

func NewTRLWriter(p *Pipe) *TRLWriter { return &TRLWriter{p: p} }

func (w *TRLWriter) WritePos(fsaPos int32) error {
	var buf [trlFrameSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(fsaPos))
	_, err := w.p.Write(buf[:])
	return err
}

// TRLReader reads FSA positions off TRL_CALC_FIFO, buffering partial
// frames across read() calls.
type TRLReader struct {
	r *bufReader
}

func NewTRLReader(p *Pipe) *TRLReader { return &TRLReader{r: newBufReader(p.file)} }

func (r *TRLReader) NextPos() (int32, error) {
	for len(r.r.buf) < trlFrameSize {
		if err := r.r.fill(); err != nil {
			return 0, err
		}
	}
	pos := int32(binary.LittleEndian.Uint32(r.r.buf[:trlFrameSize]))
	r.r.consume(trlFrameSize)
	return pos, nil
}

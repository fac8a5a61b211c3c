package fifo

import "bytes"

// DeleteType identifies which of the three DELETE_JOBS_FIFO message
// shapes a DeleteCommand carries (spec §4.6; grounded on
// handle_delete_fifo.c's type tag byte).
type DeleteType byte

const (
	DeleteAllJobsFromHost DeleteType = 1
	DeleteMessage         DeleteType = 2
	DeleteSingleFile      DeleteType = 3
)

// DeleteCommand is one decoded DELETE_JOBS_FIFO message: a type tag
// and its NUL-terminated target string (a host alias, a message name,
// or the full spool path of one file, whose parent directory is the
// message name, depending on Type).
type DeleteCommand struct {
	Type   DeleteType
	Target string
}

// DeleteReader decodes DELETE_JOBS_FIFO's length-prefix-free framing:
// a one-byte type tag followed by a NUL-terminated target string. Like
// handle_delete_fifo.c's del_fifo_buffer/del_read_ptr pair, it buffers
// a partial message across read() calls rather than requiring the
// whole frame to arrive in one read.
type DeleteReader struct {
	r *bufReader
}

func NewDeleteReader(p *Pipe) *DeleteReader {
	return &DeleteReader{r: newBufReader(p.file)}
}

// Next blocks until one full delete command has been decoded. An
// unrecognized type tag is treated the way handle_delete_fifo.c treats
// it: the entire buffered-so-far content is discarded and reading
// resumes from the next fill, since there is no reliable way to
// resynchronize mid-stream without a tag byte to anchor on.
func (d *DeleteReader) Next() (DeleteCommand, error) {
	for {
		if len(d.r.buf) == 0 {
			if err := d.r.fill(); err != nil {
				return DeleteCommand{}, err
			}
		}
		tag := DeleteType(d.r.buf[0])
		if tag != DeleteAllJobsFromHost && tag != DeleteMessage && tag != DeleteSingleFile {
			d.r.buf = d.r.buf[:0]
			continue
		}
		idx := bytes.IndexByte(d.r.buf[1:], 0)
		if idx == -1 {
			if err := d.r.fill(); err != nil {
				return DeleteCommand{}, err
			}
			continue
		}
		target := string(d.r.buf[1 : 1+idx])
		d.r.consume(1 + idx + 1)
		return DeleteCommand{Type: tag, Target: target}, nil
	}
}

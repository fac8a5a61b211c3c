package fifo

// DeleteWriter encodes DeleteCommand values onto DELETE_JOBS_FIFO.
type DeleteWriter struct {
	p *Pipe
}

func NewDeleteWriter(p *Pipe) *DeleteWriter { return &DeleteWriter{p: p} }

func (w *DeleteWriter) Write(cmd DeleteCommand) error {
	buf := make([]byte, 0, len(cmd.Target)+2)
	buf = append(buf, byte(cmd.Type))
	buf = append(buf, cmd.Target...)
	buf = append(buf, 0)
	_, err := w.p.Write(buf)
	return err
}

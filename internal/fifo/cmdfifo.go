package fifo

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// CommandReader decodes the opcode+ASCII-argument framing used by
// MON_CMD_FIFO and AFD_CMD_FIFO (spec §4.6). It tolerates garbage on
// the wire: an unrecognized leading byte is logged at WARN and
// dropped, then the reader resyncs on the next byte (spec §4.6: "All
// fifos tolerate garbage (loglevel WARN, drop byte, advance)").
type CommandReader struct {
	r   *bufReader
	log *logrus.Entry
}

// NewCommandReader builds a reader over p.
func NewCommandReader(p *Pipe, log *logrus.Entry) *CommandReader {
	return &CommandReader{r: newBufReader(p.file), log: log}
}

// Next blocks until one full command has been decoded.
func (c *CommandReader) Next() (Command, error) {
	for {
		if len(c.r.buf) == 0 {
			if err := c.r.fill(); err != nil {
				return Command{}, err
			}
		}
		op := Opcode(c.r.buf[0])
		if !knownOpcode(op) {
			c.log.WithField("byte", c.r.buf[0]).Warn("fifo: unknown opcode, dropping byte")
			c.r.consume(1)
			continue
		}
		if !op.hasArg() {
			c.r.consume(1)
			return Command{Op: op}, nil
		}
		idx := bytes.IndexByte(c.r.buf[1:], 0)
		if idx == -1 {
			if err := c.r.fill(); err != nil {
				return Command{}, err
			}
			continue
		}
		arg := string(c.r.buf[1 : 1+idx])
		c.r.consume(1 + idx + 1)
		return Command{Op: op, Arg: arg}, nil
	}
}

func knownOpcode(op Opcode) bool {
	switch op {
	case Shutdown, IsAlive, DisableMon, EnableMon, RetryHost, EnableHost, DisableHost:
		return true
	default:
		return false
	}
}

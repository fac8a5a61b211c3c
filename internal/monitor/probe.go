package monitor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/ratelimit"
	"github.com/hfs/afd-sub005/internal/status"
)

const (
	startStatCmd = "START_STAT_CMD"
	statCmd      = "STAT_CMD"
	quitCmd      = "QUIT"
)

// Dialer opens one TCP-ish connection to an AFDD server, the seam
// tests substitute with an in-memory net.Pipe listener.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// DialTCP is the production Dialer.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// Probe runs G: one remote AFD's polling client (spec §4.7). It owns
// its MSA row (by position) and reconnects with decaying/attacking
// backoff on any protocol error, until ctx is cancelled.
type Probe struct {
	area    *status.Area
	pos     int
	cfg     status.MonitorStatus
	hosts   *HostList
	dial    Dialer
	log     *logrus.Entry
	backoff *ratelimit.Backoff
}

// NewProbe builds a Probe for the MSA row at pos, whose Alias/
// Hostname/Port/PollInterval fields come from cfg (normally read back
// from the area itself right after BuildMSA). hosts receives this
// remote's HL/NH frames and may be nil if the caller doesn't need
// AFD_HOST_LIST tracking.
func NewProbe(area *status.Area, pos int, cfg status.MonitorStatus, hosts *HostList, dial Dialer, log *logrus.Entry) *Probe {
	if dial == nil {
		dial = DialTCP
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Probe{
		area:    area,
		pos:     pos,
		cfg:     cfg,
		hosts:   hosts,
		dial:    dial,
		log:     log.WithField("component", "mon_probe").WithField("alias", cfg.Alias),
		backoff: ratelimit.NewBackoff(),
	}
}

// Run connects, marks the row NORMAL_STATUS, and loops parsing frames
// until ctx is cancelled. On any error from a session it logs, disconnects, and retries after a decaying/
// attacking backoff sleep (internal/ratelimit.Backoff): a session that
// ran cleanly for a while decays the wait back toward the floor, while
// back-to-back failures attack it up toward the ceiling — it never
// returns control to the caller except on ctx cancellation, matching
// G's "on any protocol error ... retry" steady-state loop.
func (p *Probe) Run(ctx context.Context) error {
	var state ratelimit.BackoffState
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := p.runOnce(ctx)
		if err != nil {
			p.log.WithError(err).Warn("mon probe session ended")
		}
		state = p.backoff.Next(state, err != nil)
		p.log.WithField("sleep", state.SleepTime).Debug("mon probe retrying after backoff")
		if werr := p.backoff.Wait(ctx, state); werr != nil {
			return werr
		}
	}
}

func (p *Probe) runOnce(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", p.cfg.Hostname, p.cfg.Port)
	conn, err := p.dial(ctx, addr)
	if err != nil {
		p.setStatus(status.MonDisconnected)
		return fmt.Errorf("monitor: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\r\n", startStatCmd); err != nil {
		return fmt.Errorf("monitor: send %s: %w", startStatCmd, err)
	}
	p.setStatus(status.MonNormal)

	reader := bufio.NewReader(conn)
	pollInterval := time.Duration(p.cfg.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if _, werr := fmt.Fprintf(conn, "%s\r\n", statCmd); werr != nil {
					return fmt.Errorf("monitor: send %s: %w", statCmd, werr)
				}
				continue
			}
			return fmt.Errorf("monitor: read frame: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		frame, err := ParseFrame(line)
		if err != nil {
			p.quit(conn)
			return err
		}

		var m status.MonitorStatus
		if rerr := p.area.ReadRecord(p.pos, &m); rerr != nil {
			return rerr
		}
		shutdown, aerr := ApplyFrame(&m, p.hosts, frame, time.Now())
		if aerr != nil {
			p.quit(conn)
			return aerr
		}
		if werr := p.area.WriteRecord(p.pos, &m); werr != nil {
			return werr
		}
		if shutdown {
			p.setStatus(status.MonDisconnected)
			return fmt.Errorf("monitor: %s from %s, reconnecting after backoff", shutdownFrameType, p.cfg.Alias)
		}
	}
}

// quit implements spec §4.7's "on any protocol error: log, tcp_quit()"
// step: best-effort send of QUIT with a short deadline so a
// half-broken connection can't block the retry loop.
func (p *Probe) quit(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = fmt.Fprintf(conn, "%s\r\n", quitCmd)
}

func (p *Probe) setStatus(s status.MonConnectStatus) {
	var m status.MonitorStatus
	if err := p.area.ReadRecord(p.pos, &m); err != nil {
		return
	}
	m.ConnectStatus = s
	_ = p.area.WriteRecord(p.pos, &m)
}

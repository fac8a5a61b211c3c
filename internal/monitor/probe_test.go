package monitor

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/status"
)

func TestProbeRunAppliesFramesThenReconnectsOnShutdown(t *testing.T) {
	area := newMSAArea(t)
	if err := BuildMSA(area, []afdconfig.AFDEntry{{Alias: "remote1", Hostname: "remote1", Port: 1, PollInterval: 30}}); err != nil {
		t.Fatalf("build msa: %v", err)
	}
	var cfg status.MonitorStatus
	if err := area.ReadRecord(0, &cfg); err != nil {
		t.Fatalf("read cfg: %v", err)
	}

	serverDone := make(chan struct{})
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer close(serverDone)
			r := bufio.NewReader(server)
			line, err := r.ReadString('\n')
			if err != nil || line != "START_STAT_CMD\r\n" {
				return
			}
			if _, err := server.Write([]byte("IS 1 100 10 2 0 0 1 1\r\n")); err != nil {
				return
			}
			if _, err := server.Write([]byte("AFDD_SHUTDOWN_MESSAGE\r\n")); err != nil {
				return
			}
		}()
		return client, nil
	}

	probe := NewProbe(area, 0, cfg, nil, dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = probe.Run(ctx)

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("fake server never completed its script")
	}

	var got status.MonitorStatus
	if err := area.ReadRecord(0, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.FilesToSend != 1 || got.TransferRate != 10 {
		t.Fatalf("expected IS frame applied before shutdown, got %+v", got)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidium-dev/obsidium/internal/errors"
	"github.com/obsidium-dev/obsidium/pkg/client"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/transport"
)

func pingCmd() *cobra.Command {
	var (
		via      string
		protocol int32
		timeout  time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "ping <address>",
		Short: "Query a server's status",
		Long: `Query the server list status of a server and measure its latency.

The address is host[:port] for tcp and quic, and a ws:// URL for the
WebSocket bridge.

Examples:
  obsidium ping localhost
  obsidium ping mc.example.com:25566 --json
  obsidium ping ws://localhost:8080/ws --via ws`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, rtt, err := ping(ctx, via, args[0], packet.Version(protocol), timeout)
			if err != nil {
				return errors.New("E122").WithDetail(args[0]).Wrap(err)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					packet.ServerStatus
					LatencyMS int64 `json:"latency_ms"`
				}{st, rtt.Milliseconds()})
			}
			success("%s", st.Description.Text)
			info("Version: %s (protocol %d)", st.Version.Name, st.Version.Protocol)
			info("Players: %d/%d", st.Players.Online, st.Players.Max)
			for _, p := range st.Players.Sample {
				info("  %s", p.Name)
			}
			info("Latency: %s", rtt.Round(time.Millisecond/10))
			return nil
		},
	}

	cmd.Flags().StringVar(&via, "via", "tcp", "Transport: tcp, ws or quic")
	cmd.Flags().Int32Var(&protocol, "protocol", int32(packet.Latest), "Protocol version to announce")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Overall timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")

	return cmd
}

func ping(ctx context.Context, via, addr string, v packet.Version, timeout time.Duration) (packet.ServerStatus, time.Duration, error) {
	opts := []client.Option{client.WithVersion(v), client.WithTimeout(timeout)}

	var (
		nc  net.Conn
		err error
	)
	switch via {
	case "tcp":
		return client.Ping(ctx, withDefaultPort(addr), opts...)
	case "ws":
		nc, err = transport.DialWebSocket(ctx, addr)
	case "quic":
		nc, err = transport.DialQUIC(ctx, withDefaultPort(addr), nil)
	default:
		return packet.ServerStatus{}, 0, fmt.Errorf("unknown transport %q", via)
	}
	if err != nil {
		return packet.ServerStatus{}, 0, err
	}
	c, err := client.New(nc, opts...)
	if err != nil {
		nc.Close()
		return packet.ServerStatus{}, 0, err
	}
	defer c.Close()
	return c.Status()
}

// withDefaultPort appends the vanilla port to addresses without one.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "25565")
}

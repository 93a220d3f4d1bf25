// Command kftray-server is the image deployed as the in-cluster proxy
// workload for rules with workload_type=proxy: it listens on
// constants.ServerPort, reads one internal/proxytunnel.Header naming a
// destination host:port per accepted connection, dials it, writes an
// Acknowledgement, then splices. Grounded directly on the teacher's
// cmd/server/main.go, generalized from klog to this module's slog and from
// a raw flag.FlagSet to cobra-only (no client-go transport runs in this
// binary, so there is no klog source to bridge).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hcavarsan/kftray-sub001/internal/proxytunnel"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	"github.com/hcavarsan/kftray-sub001/pkg/xnet"
)

type options struct {
	connectTimeout time.Duration
}

func (o *options) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", constants.ServerPort))
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	dialer := net.Dialer{Timeout: o.connectTimeout}
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("accept failed", slog.Any("error", err))
			continue
		}
		go handleConn(ctx, c, &dialer)
	}
}

func writeAck(c net.Conn, code proxytunnel.AckCode) error {
	_, err := c.Write(proxytunnel.Acknowledgement{Code: code}.Marshal())
	return err
}

func ackCodeFromErr(err error) proxytunnel.AckCode {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return proxytunnel.AckNoSuchHost
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Timeout() {
		return proxytunnel.AckConnectTimeout
	}
	return proxytunnel.AckUnknownError
}

func handleConn(ctx context.Context, c net.Conn, dialer *net.Dialer) {
	defer c.Close()

	hdr, err := proxytunnel.ReadHeader(c)
	if err != nil {
		slog.Error("read handshake header failed", slog.Any("error", err))
		return
	}
	if hdr.Protocol != proxytunnel.ProtoTCP {
		slog.Error("unsupported handshake protocol", slog.Any("protocol", hdr.Protocol))
		_ = writeAck(c, proxytunnel.AckUnknownError)
		return
	}

	dstAddr := net.JoinHostPort(hdr.Addr.String(), fmt.Sprintf("%d", hdr.Port))

	upstream, err := dialer.DialContext(ctx, "tcp", dstAddr)
	if err != nil {
		slog.Error("dial upstream failed", slog.Any("error", err), slog.String(constants.LogFieldDestAddr, dstAddr))
		_ = writeAck(c, ackCodeFromErr(err))
		return
	}
	defer upstream.Close()

	if err := writeAck(c, proxytunnel.AckOK); err != nil {
		slog.Error("write ack failed", slog.Any("error", err))
		return
	}

	slog.Info("proxying connection", slog.String(constants.LogFieldDestAddr, dstAddr))
	xnet.ProxyTCP(dstAddr, c, upstream)
}

func main() {
	o := &options{}
	cmd := &cobra.Command{
		Use:   constants.ServerName,
		Short: "In-cluster proxy workload for workload_type=proxy rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return o.run(ctx)
		},
		SilenceUsage: true,
	}
	cmd.Flags().DurationVar(&o.connectTimeout, "connect-timeout", 10*time.Second, "Timeout for dialing the destination named in the handshake header.")
	_ = cmd.Execute()
}

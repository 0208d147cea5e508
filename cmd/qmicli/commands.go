package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/device"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// CLI runs commands against an open device.
type CLI struct {
	dev     *device.Device
	out     io.Writer
	timeout time.Duration
	print   wire.PrintOptions
}

type sendOptions struct {
	// clientID below zero allocates a new client.
	clientID int
	release  bool
}

// Exec runs one command.
func (c *CLI) Exec(ctx context.Context, cmd string, args []string, so sendOptions) error {
	switch cmd {
	case "version-info", "versions":
		return c.cmdVersionInfo(ctx)
	case "sync":
		return c.cmdSync(ctx)
	case "set-instance-id":
		return c.cmdSetInstanceID(ctx, args)
	case "send":
		return c.cmdSend(ctx, args, so)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *CLI) cmdVersionInfo(ctx context.Context) error {
	versions, err := c.dev.ServiceVersionInfo(ctx, c.timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "[%s] Supported services:\n", c.dev.Name())
	for _, v := range versions {
		fmt.Fprintf(c.out, "  %-8s (%d.%d)\n", v.Service, v.Major, v.Minor)
	}
	return nil
}

func (c *CLI) cmdSync(ctx context.Context) error {
	if err := c.dev.Sync(ctx, c.timeout); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "[%s] Client ids released\n", c.dev.Name())
	return nil
}

func (c *CLI) cmdSetInstanceID(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: set-instance-id <n>")
	}
	n, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid instance id %q", args[0])
	}
	link, err := c.dev.SetInstanceID(ctx, uint8(n), c.timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "[%s] Instance %d bound, link id 0x%04x\n", c.dev.Name(), n, link)
	return nil
}

func (c *CLI) cmdSend(ctx context.Context, args []string, so sendOptions) error {
	req, err := parseSendArgs(args)
	if err != nil {
		return err
	}

	cid := wire.CIDNone
	switch {
	case so.clientID > math.MaxUint8:
		return fmt.Errorf("client id %d out of range", so.clientID)
	case so.clientID >= 0:
		cid = uint8(so.clientID)
	}
	client, err := c.dev.AllocateClient(ctx, req.service, cid, 0)
	if err != nil {
		return fmt.Errorf("allocate %s client: %w", req.service, err)
	}
	fmt.Fprintf(c.out, "[%s] Client %s\n", c.dev.Name(), client)

	sendErr := c.send(ctx, client, req)

	if so.release {
		flags := registry.ReleaseNone
		if client.Allocated() {
			flags = registry.ReleaseCID
		}
		// The command context may be cancelled already; the release still
		// gets its own deadline.
		if err := c.dev.ReleaseClient(context.WithoutCancel(ctx), client, flags, c.releaseTimeout()); err != nil {
			fmt.Fprintf(c.out, "Release %s: %v\n", client, err)
		}
	}
	return sendErr
}

func (c *CLI) releaseTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return 10 * time.Second
}

func (c *CLI) send(ctx context.Context, client *device.Client, req sendRequest) error {
	resp, err := client.SendAbortable(ctx, req.messageID, c.timeout, req.tlvs...)
	if resp != nil {
		fmt.Fprint(c.out, resp.Printable("<<< ", c.print))
	}
	return err
}

// sendRequest is a parsed "send" command line.
type sendRequest struct {
	service   wire.Service
	messageID uint16
	tlvs      []wire.TLV
}

// parseSendArgs parses "<svc> <msgid> [tag=hex...]".
func parseSendArgs(args []string) (sendRequest, error) {
	var r sendRequest
	if len(args) < 2 {
		return r, errors.New("usage: send <svc> <msgid> [tag=hex...]")
	}
	svc, err := wire.ParseService(args[0])
	if err != nil {
		return r, err
	}
	if svc == wire.ServiceCTL {
		return r, errors.New("CTL requests are issued by the device itself")
	}
	return parseRequestBody(svc, args[1:])
}

// parseRequestBody parses "<msgid> [tag=hex...]" for a request of svc.
func parseRequestBody(svc wire.Service, args []string) (sendRequest, error) {
	r := sendRequest{service: svc}
	if len(args) < 1 {
		return r, errors.New("missing message id")
	}
	id, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return r, fmt.Errorf("invalid message id %q", args[0])
	}
	tlvs, err := parseTLVs(args[1:])
	if err != nil {
		return r, err
	}
	r.messageID = uint16(id)
	r.tlvs = tlvs
	return r, nil
}

// parseTLVs parses TLV arguments of the form "tag=hex". The tag is decimal
// or 0x-prefixed; the value may separate bytes with colons and may be
// empty.
func parseTLVs(args []string) ([]wire.TLV, error) {
	tlvs := make([]wire.TLV, 0, len(args))
	for _, a := range args {
		tagStr, valStr, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("invalid TLV %q: want tag=hex", a)
		}
		tag, err := strconv.ParseUint(tagStr, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid TLV tag %q", tagStr)
		}
		val, err := hex.DecodeString(strings.ReplaceAll(valStr, ":", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid TLV value %q: %w", valStr, err)
		}
		tlvs = append(tlvs, wire.TLV{Type: uint8(tag), Value: val})
	}
	return tlvs, nil
}

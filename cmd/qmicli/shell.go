package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/qmi-protocol/qmi-go/pkg/device"
	"github.com/qmi-protocol/qmi-go/pkg/indication"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Shell is the interactive mode. Clients allocated in the shell stay
// registered until released or until the shell exits.
type Shell struct {
	cli     *CLI
	rl      *readline.Instance
	clients map[string]*device.Client
	watches map[string]indication.ID
}

// NewShell creates a shell on top of cli.
func NewShell(cli *CLI) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "qmi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	cli.out = rl.Stdout()
	return &Shell{
		cli:     cli,
		rl:      rl,
		clients: make(map[string]*device.Client),
		watches: make(map[string]indication.ID),
	}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.releaseAll(ctx)

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.cli.dev.Done():
			fmt.Fprintln(s.rl.Stdout(), "Device closed")
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "status":
			s.cmdStatus()
		case "versions", "version-info", "sync", "set-instance-id":
			s.report(s.cli.Exec(ctx, cmd, args, sendOptions{}))
			if cmd == "sync" {
				clear(s.clients)
				clear(s.watches)
			}
		case "allocate", "alloc":
			s.cmdAllocate(ctx, args)
		case "release":
			s.cmdRelease(ctx, args)
		case "clients":
			s.cmdClients()
		case "send", "s":
			s.cmdSend(ctx, args)
		case "watch":
			s.cmdWatch(args)
		case "unwatch":
			s.cmdUnwatch(args)
		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
QMI Shell Commands:
  Port:
    status                       - Show port state and flags
    versions                     - Query supported services
    sync                         - Release every client id on the modem
    set-instance-id <n>          - Bind the port to a data instance

  Clients:
    allocate <svc> [cid]         - Allocate a client (or adopt cid)
    release <svc/cid> [keep]     - Release a client; keep leaves the id on the modem
    clients                      - List registered clients

  Messages:
    send <svc/cid> <msgid> [tag=hex...]  - Send a request and print the response
    watch <svc/cid> [msgid...]           - Print indications for a client
    unwatch <svc/cid>                    - Stop printing indications

  General:
    help                         - Show this help
    quit                         - Exit`)
}

func (s *Shell) report(err error) {
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func (s *Shell) cmdStatus() {
	dev := s.cli.dev
	out := s.rl.Stdout()
	fmt.Fprintf(out, "Device:  %s\n", dev.Name())
	fmt.Fprintf(out, "Port id: %s\n", dev.PortID())
	fmt.Fprintf(out, "State:   %s\n", dev.State())
	fmt.Fprintf(out, "Flags:   %s\n", dev.Flags())
	fmt.Fprintf(out, "Clients: %d\n", len(dev.Clients()))
}

func (s *Shell) cmdAllocate(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: allocate <svc> [cid]")
		return
	}
	svc, err := wire.ParseService(args[0])
	if err != nil {
		s.report(err)
		return
	}
	cid := wire.CIDNone
	if len(args) == 2 {
		n, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			s.report(fmt.Errorf("invalid client id %q", args[1]))
			return
		}
		cid = uint8(n)
	}
	c, err := s.cli.dev.AllocateClient(ctx, svc, cid, s.cli.timeout)
	if err != nil {
		s.report(err)
		return
	}
	s.clients[c.String()] = c
	fmt.Fprintf(s.rl.Stdout(), "Client %s (allocated=%v)\n", c, c.Allocated())
}

func (s *Shell) cmdRelease(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: release <svc/cid> [keep]")
		return
	}
	c, err := s.lookup(args[0])
	if err != nil {
		s.report(err)
		return
	}
	flags := registry.ReleaseCID
	if len(args) > 1 && args[1] == "keep" {
		flags = registry.ReleaseNone
	}
	s.forget(c)
	if err := s.cli.dev.ReleaseClient(ctx, c, flags, s.cli.timeout); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Released %s\n", c)
}

func (s *Shell) cmdClients() {
	clients := s.cli.dev.Clients()
	if len(clients) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No clients")
		return
	}
	for _, c := range clients {
		_, watched := s.watches[c.String()]
		fmt.Fprintf(s.rl.Stdout(), "  %-10s allocated=%-5v watched=%v\n", c, c.Allocated, watched)
	}
}

func (s *Shell) cmdSend(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: send <svc/cid> <msgid> [tag=hex...]")
		return
	}
	c, err := s.lookup(args[0])
	if err != nil {
		s.report(err)
		return
	}
	req, err := parseRequestBody(c.Service(), args[1:])
	if err != nil {
		s.report(err)
		return
	}
	s.report(s.cli.send(ctx, c, req))
}

func (s *Shell) cmdWatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: watch <svc/cid> [msgid...]")
		return
	}
	c, err := s.lookup(args[0])
	if err != nil {
		s.report(err)
		return
	}
	var ids []uint16
	for _, a := range args[1:] {
		n, err := strconv.ParseUint(a, 0, 16)
		if err != nil {
			s.report(fmt.Errorf("invalid message id %q", a))
			return
		}
		ids = append(ids, uint16(n))
	}
	if old, ok := s.watches[c.String()]; ok {
		s.cli.dev.Unsubscribe(old)
	}
	s.watches[c.String()] = c.OnIndication(s.printIndication, ids...)
	fmt.Fprintf(s.rl.Stdout(), "Watching %s\n", c)
}

func (s *Shell) cmdUnwatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unwatch <svc/cid>")
		return
	}
	c, err := s.lookup(args[0])
	if err != nil {
		s.report(err)
		return
	}
	id, ok := s.watches[c.String()]
	if !ok {
		s.report(fmt.Errorf("%s is not watched", c))
		return
	}
	s.cli.dev.Unsubscribe(id)
	delete(s.watches, c.String())
}

func (s *Shell) printIndication(msg *wire.Message) {
	fmt.Fprint(s.rl.Stdout(), msg.Printable("*** ", s.cli.print))
}

// lookup finds a shell client by its "SVC/cid" name.
func (s *Shell) lookup(name string) (*device.Client, error) {
	svcStr, cidStr, ok := strings.Cut(name, "/")
	if !ok {
		return nil, fmt.Errorf("invalid client %q: want svc/cid", name)
	}
	svc, err := wire.ParseService(svcStr)
	if err != nil {
		return nil, err
	}
	cid, err := strconv.ParseUint(cidStr, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid client id %q", cidStr)
	}
	key := registry.Client{Service: svc, ClientID: uint8(cid)}.String()
	c, ok := s.clients[key]
	if !ok {
		return nil, fmt.Errorf("no client %s (use allocate first)", key)
	}
	return c, nil
}

func (s *Shell) forget(c *device.Client) {
	if id, ok := s.watches[c.String()]; ok {
		s.cli.dev.Unsubscribe(id)
		delete(s.watches, c.String())
	}
	delete(s.clients, c.String())
}

// releaseAll releases the clients the shell allocated on the modem.
func (s *Shell) releaseAll(ctx context.Context) {
	if !s.cli.dev.IsOpen() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, c := range s.clients {
		flags := registry.ReleaseNone
		if c.Allocated() {
			flags = registry.ReleaseCID
		}
		if err := s.cli.dev.ReleaseClient(ctx, c, flags, s.cli.releaseTimeout()); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Release %s: %v\n", c, err)
		}
		s.forget(c)
	}
}

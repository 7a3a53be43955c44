package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lanchat/internal/server"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		name      string
		gateway   string
		advertise bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a discoverable chat server",
		Long: `Run a server that answers discovery queries for its name and accepts
sessions. Every payload a client sends is printed and relayed to all clients
as "Server <name> <text>".

Console input:
  <text>          send to every client
  @<name> <text>  send to one client
  /info           list connected clients
  /quit           stop the server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("name") {
				cfg.Server.Name = name
			}
			if flags.Changed("gateway") {
				cfg.Server.Gateway = gateway
			}
			if flags.Changed("advertise") {
				cfg.Server.Advertise = advertise
			}
			if cfg.Server.Name == "" {
				return errors.New("a server name is required (--name or server.name)")
			}
			return runServe(cmd.Context(), g, newConsole(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "server name clients discover")
	cmd.Flags().StringVar(&gateway, "gateway", "", "HTTP/WebSocket gateway address, e.g. :8080")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "also advertise the session port over mDNS")

	return cmd
}

func runServe(ctx context.Context, g *globals, con *console) error {
	opts, err := g.cfg.ServerOptions()
	if err != nil {
		return err
	}

	// The relay handler needs the server it belongs to.
	var srv *server.Server
	relay := func(sender, text string) {
		con.message(sender, text)
		srv.SendToAll("Server " + srv.Name() + " " + text)
	}
	srv, err = server.New(g.cfg.Server.Name, append(opts, server.WithMessageHandler(relay))...)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	con.success("server %s listening (discovery %s, sessions %s)", srv.Name(), srv.DiscoveryAddr(), srv.SessionAddr())
	if addr := srv.GatewayAddr(); addr != nil {
		con.success("gateway on http://%s", addr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	lines := readLines(os.Stdin)
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					logrus.Debug("console input closed, serving until interrupted")
					lines = nil
					continue
				}
				if serverCommand(srv, con, line) {
					cancel()
					return nil
				}
			}
		}
	})
	group.Go(func() error {
		<-ctx.Done()
		con.notice("stopping server %s", srv.Name())
		srv.Stop()
		return nil
	})
	return group.Wait()
}

// serverCommand executes one console line and reports whether it asked to quit.
func serverCommand(srv *server.Server, con *console, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/info":
		con.println(srv.Describe())
	case strings.HasPrefix(line, "@"):
		name, text, _ := strings.Cut(line[1:], " ")
		if !srv.SendTo(name, text) {
			con.failure("no client named %q", name)
		}
	default:
		if srv.SendToAll(line) == 0 {
			con.notice("no clients received the message")
		}
	}
	return false
}

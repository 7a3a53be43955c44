package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lanchat/internal/client"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func joinCmd(g *globals) *cobra.Command {
	var name, serverName string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Find a server by name and chat with it",
		Long: `Broadcast a discovery query for the server, connect to the first one that
answers and announce the client name. Console lines are sent as messages;
/info describes the session and /quit (or end of input) disconnects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("name") {
				cfg.Client.Name = name
			}
			if flags.Changed("server") {
				cfg.Client.Server = serverName
			}
			if cfg.Client.Name == "" || cfg.Client.Server == "" {
				return errors.New("client and server names are required (--name/--server or client.name/client.server)")
			}
			return runJoin(cmd.Context(), g, newConsole(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "name to announce to the server")
	cmd.Flags().StringVarP(&serverName, "server", "s", "", "name of the server to discover")

	return cmd
}

func runJoin(ctx context.Context, g *globals, con *console) error {
	opts, err := g.cfg.ClientOptions()
	if err != nil {
		return err
	}
	serverName := g.cfg.Client.Server
	c, err := client.New(g.cfg.Client.Name, serverName, append(opts, client.WithListener(func(text string) {
		con.message(serverName, text)
	}))...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		if errors.Is(err, client.ErrServerNotFound) {
			return errors.Wrapf(err, "no server named %q answered", serverName)
		}
		return err
	}
	con.success("connected to %s at %s as %s", serverName, c.ServerAddr(), c.Name())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	lines := readLines(os.Stdin)
	group.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || clientCommand(c, con, line) {
					return nil
				}
			}
		}
	})
	group.Go(func() error {
		select {
		case <-ctx.Done():
		case <-c.Done():
			con.notice("server %s closed the session", serverName)
			cancel()
		}
		if err := c.Disconnect(); err != nil && !errors.Is(err, client.ErrNotConnected) {
			return err
		}
		return nil
	})
	return group.Wait()
}

// clientCommand executes one console line and reports whether it asked to quit.
func clientCommand(c *client.Client, con *console, line string) bool {
	switch strings.TrimSpace(line) {
	case "":
	case "/quit":
		return true
	case "/info":
		con.println(c.Describe())
	default:
		if !c.Send(line) {
			con.failure("message not sent")
		}
	}
	return false
}

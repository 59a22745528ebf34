// hubchat is a terminal chat client for the marketplace, mostly useful for
// poking at a running hubd.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/freelancehub/hub"
	"github.com/freelancehub/hub/client"
	"github.com/freelancehub/hub/internal/config"
	"github.com/freelancehub/hub/internal/usecase"
)

// cliPayments declines everything; hubchat is for chat, not checkout.
type cliPayments struct{}

func (cliPayments) Charge(ctx context.Context, buyerID string, gig hub.Gig) error {
	return errors.New("payments are not available from hubchat")
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	identity := flag.String("identity", "", "identity to chat as")
	role := flag.String("role", "client", "identity role: client or freelancer")
	flag.Parse()

	if *identity == "" {
		fmt.Fprintln(os.Stderr, "usage: hubchat -identity <id> [-role client|freelancer] [-config config.yaml]")
		os.Exit(1)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	c := client.New(conf.Client, cliPayments{})
	defer c.Close()

	ctx := context.Background()
	err = c.SetIdentity(ctx, hub.Identity{ID: *identity, Role: hub.Role(*role)})
	if err != nil {
		slog.Error("failed to join", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rendered := 0
	c.OnMessages(func(messages []hub.Message) {
		state, stateErr := c.MessagesState()
		if state == usecase.StateLoading && stateErr != nil {
			fmt.Printf("! history fetch failed: %v (retrying may help)\n", stateErr)
		}
		for ; rendered < len(messages); rendered++ {
			m := messages[rendered]
			marker := ""
			switch m.State {
			case hub.DeliveryPending:
				marker = " (sending)"
			case hub.DeliveryFailed:
				marker = " (failed)"
			}
			fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04:05"), m.Sender, m.Content, marker)
		}
	})

	fmt.Printf("joined as %s, type a message and press enter\n", *identity)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "/retry" {
			c.RetryMessages(ctx)
			continue
		}
		if line == "/quit" {
			return
		}
		if _, err := c.PostMessage(line); err != nil {
			fmt.Printf("! send failed: %v\n", err)
		}
	}
}

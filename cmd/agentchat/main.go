// In file: cmd/agentchat/main.go

// agentchat talks to the configured agent from a terminal. Clarifying
// questions from the model are asked inline on the same prompt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"github.com/santoshameti/agentgateway/internal/config"
	"github.com/santoshameti/agentgateway/internal/gateway"
	"github.com/santoshameti/agentgateway/internal/tools"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"

	userPrompt = colorCyan + "you> " + colorReset
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func run() error {
	if os.Getenv("AGENTCHAT_VERBOSE") == "" {
		log.SetOutput(io.Discard)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rl, err := readline.New(userPrompt)
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	setup, err := gateway.FromConfig(context.Background(), cfg, readlinePrompter(rl))
	if err != nil {
		return err
	}
	defer setup.Close()
	gw := setup.Gateway

	id, err := gw.StartConversation(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%sConnected to %s/%s. Commands: /new, /history, /quit%s\n",
		colorGreen, gw.Agent().Name(), gw.Agent().Model(), colorReset)

	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Printf("\n%sGoodbye!%s\n", colorGreen, colorReset)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Printf("%sGoodbye!%s\n", colorGreen, colorReset)
			return nil
		case "/new":
			if id, err = gw.StartConversation(context.Background()); err != nil {
				return err
			}
			fmt.Printf("%sStarted conversation %s%s\n", colorGreen, id, colorReset)
			continue
		case "/history":
			transcript, err := gw.Store().Format(context.Background(), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
				continue
			}
			fmt.Println(transcript)
			continue
		}

		// Ctrl-C while the agent is working cancels the turn, not the session.
		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		res, err := gw.Run(ctx, input, id)
		signal.Stop(sigCh)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
			continue
		}
		fmt.Printf("%sagent>%s %s\n", colorYellow, colorReset, res.Answer)
		fmt.Printf("%s(%d tokens, %d model calls)%s\n", colorCyan, res.Usage.TotalTokens, res.LLMCalls, colorReset)
	}
}

// readlinePrompter asks clarifying questions on the chat prompt.
func readlinePrompter(rl *readline.Instance) tools.Prompter {
	return tools.PrompterFunc(func(ctx context.Context, question string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Printf("%sagent asks>%s %s\n", colorYellow, colorReset, question)
		rl.SetPrompt(colorCyan + "answer> " + colorReset)
		defer rl.SetPrompt(userPrompt)

		answer, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				return "", context.Canceled
			}
			return "", err
		}
		return strings.TrimSpace(answer), nil
	})
}

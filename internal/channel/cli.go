package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"concierge/internal/domain"
)

// CLI implements domain.Channel for interactive terminal chat. Useful for
// trying the assistant without wiring a messaging platform.
type CLI struct {
	bus         domain.MessageBus
	logger      *slog.Logger
	in          io.Reader
	out         io.Writer
	personaName string

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIChannelConfig struct {
	PersonaName string
	Logger      *slog.Logger
	In          io.Reader
	Out         io.Writer
}

func NewCLI(cfg CLIChannelConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.PersonaName == "" {
		cfg.PersonaName = "Assistant"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:      cfg.Logger,
		in:          cfg.In,
		out:         cfg.Out,
		personaName: cfg.PersonaName,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive loop and blocks until EOF, /quit, or ctx cancel.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		c.stopThinking()
		_, _ = fmt.Fprint(c.out, "\r\033[K")
		_, _ = fmt.Fprintf(c.out, "%s> %s\n", c.personaName, msg.Content)
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintf(c.out, "Chatting with %s. Messages sent within the quiet period are merged into one turn. /quit to exit.\n", c.personaName)
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.startThinking()
		c.bus.Publish(domain.InboundMessage{
			Channel:     "cli",
			ChatID:      "direct",
			SenderID:    "local",
			DisplayName: "You",
			Content:     line,
			Timestamp:   time.Now().Unix(),
		})
	}
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.thinkStop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Listening...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

func (c *CLI) Stop() error { return nil }

// Package main is a terminal guest client for the table chat API.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/chatclient"
	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/logger"
)

const greeting = "Hello! How can I help you today?"

type options struct {
	server   string
	hotelID  string
	tableID  string
	stream   bool
	stateDir string
	logLevel string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:          "tablechat",
		Short:        "Chat with the table assistant from a terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("TABLECHAT_SERVER", "http://localhost:8080"), "gateway base URL")
	root.PersistentFlags().StringVar(&opts.stateDir, "state-dir", defaultStateDir(), "directory holding the cached uid and transcript")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (/clear empties the transcript, /quit exits)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chatCmd.Flags().StringVar(&opts.hotelID, "hotel", "", "hotel id from the table QR code")
	chatCmd.Flags().StringVar(&opts.tableID, "table", "", "table id from the table QR code")
	chatCmd.Flags().BoolVar(&opts.stream, "stream", true, "stream replies as they are generated")

	uidCmd := &cobra.Command{
		Use:   "uid",
		Short: "Print the anonymous identity, fetching it on first use",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := chatclient.New(opts.server)
			if err != nil {
				return err
			}
			uid, err := client.EnsureIdentity(cmd.Context(), identityCache(opts))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uid)
			return nil
		},
	}

	root.AddCommand(chatCmd, uidCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(root.ExecuteContext(ctx))
}

func runChat(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	log, err := logger.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	var clientOpts []chatclient.Option
	if opts.hotelID != "" || opts.tableID != "" {
		if opts.hotelID == "" || opts.tableID == "" {
			return fmt.Errorf("--hotel and --table must be given together")
		}
		clientOpts = append(clientOpts, chatclient.WithTable(opts.hotelID, opts.tableID))
	}

	client, err := chatclient.New(opts.server, clientOpts...)
	if err != nil {
		return err
	}

	uid, err := client.EnsureIdentity(ctx, identityCache(opts))
	if err != nil {
		// Chat still works; the gateway just won't tag the exchange.
		log.Warn("failed to establish identity", zap.Error(err))
	}
	log.Debug("identity ready", zap.String("uid", uid))

	p := &printer{out: out}
	session, err := chatclient.NewSession(client,
		chatclient.WithStreaming(opts.stream),
		chatclient.WithStore(chatclient.NewFileStore(filepath.Join(opts.stateDir, transcriptFile(opts)))),
		chatclient.WithObserver(p.observe),
		chatclient.WithLogger(log),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "assistant> %s\n", greeting)
	for _, m := range session.Messages() {
		fmt.Fprintf(out, "%s> %s\n", m.Sender, m.Text)
	}
	p.seen = len(session.Messages())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		switch line := scanner.Text(); strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := session.Clear(ctx); err != nil {
				return err
			}
			p.seen = 0
			fmt.Fprintln(out, "(transcript cleared)")
		default:
			err := session.Submit(ctx, line)
			if errors.Is(err, chatclient.ErrEmptyMessage) {
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}

// printer renders assistant text as the session reports it.
type printer struct {
	out io.Writer
	// seen counts messages fully rendered; printed counts runes of the
	// message being streamed.
	seen    int
	printed int
}

func (p *printer) observe(messages []model.ChatMessage, state chatclient.State) {
	if len(messages) <= p.seen {
		return
	}
	last := messages[len(messages)-1]
	if last.Sender == model.SenderUser {
		// The terminal already shows what the guest typed.
		p.seen = len(messages)
		return
	}

	if p.printed == 0 {
		fmt.Fprint(p.out, "assistant> ")
	}
	text := []rune(last.Text)
	fmt.Fprint(p.out, string(text[p.printed:]))
	p.printed = len(text)

	if state == chatclient.StateIdle {
		fmt.Fprintln(p.out)
		p.seen = len(messages)
		p.printed = 0
	}
}

func identityCache(opts *options) *chatclient.IdentityCache {
	return chatclient.NewIdentityCache(filepath.Join(opts.stateDir, "uid"))
}

func transcriptFile(opts *options) string {
	if opts.hotelID == "" {
		return "transcript.json"
	}
	return fmt.Sprintf("transcript-%s-%s.json", url.PathEscape(opts.hotelID), url.PathEscape(opts.tableID))
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tablechat")
	}
	return ".tablechat"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

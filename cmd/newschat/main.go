package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/newschat/internal/api"
	"github.com/pbaille/newschat/internal/config"
	"github.com/pbaille/newschat/internal/logging"
	"github.com/pbaille/newschat/internal/session"
	"github.com/pbaille/newschat/internal/sidebar"
	"github.com/pbaille/newschat/internal/speech"
	"github.com/pbaille/newschat/internal/term"
)

var (
	dbPath        string
	classifierURL string
	memoryOnly    bool
	verbose       bool

	cfg *config.Config
	log *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "newschat",
		Short:         "Chat with a real-vs-fake news classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides NEWSCHAT_DB)")
	rootCmd.PersistentFlags().StringVar(&classifierURL, "classifier-url", "", "classifier endpoint (overrides NEWSCHAT_CLASSIFIER_URL)")
	rootCmd.PersistentFlags().BoolVar(&memoryOnly, "memory", false, "keep history in memory only")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level in interactive commands")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command) error {
	c, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Storage.DBPath = dbPath
	}
	if memoryOnly {
		c.Storage.DBPath = ""
	}
	if flags.Changed("classifier-url") {
		c.Classifier.URL = classifierURL
	}
	if err := c.Normalize(); err != nil {
		return err
	}

	// Keep the terminal quiet unless asked otherwise.
	if cmd.Name() != "serve" && !verbose && os.Getenv("LOG_LEVEL") == "" {
		c.Log.Level = "warn"
	}

	cfg = c
	log = logging.New(cfg.Log, os.Stderr)
	return nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat (default front-end)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			t := term.New(os.Stdout, cfg.Display.BarWidth)
			spk := speech.NewSpeaker(cfg.Speech.SpeakCommand, log)
			defer spk.Wait()

			a, err := openApp(session.Deps{
				Speaker:    spk,
				Notifier:   t,
				Recognizer: speech.NewRecognizer(cfg.Speech.ListenCommand),
				UI:         t,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			// Load renders the history, or the welcome text when empty.
			if err := a.session.Load(ctx); err != nil {
				return err
			}
			fmt.Println(chatHelp)

			return runChat(ctx, a.session, t, os.Stdin)
		},
	}
}

const chatHelp = `Comandos: /historial  /abrir N  /buscar TEXTO  /dictar  /borrar  /salir`

// readLines streams lines from in until it ends or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func runChat(ctx context.Context, sess *session.Session, t *term.Terminal, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(ctx, in)

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "":
			// Enter on an empty line sends the dictated text, if any.
			err = sess.Submit(ctx, t.TakeInput())
		case "/salir", "/quit":
			return nil
		case "/historial", "/history":
			t.Sidebar(sess.Snapshot().Sidebar)
		case "/abrir", "/open":
			err = openItem(ctx, sess, arg)
		case "/buscar", "/select":
			err = sess.SelectPast(ctx, arg)
		case "/dictar", "/dictate":
			if _, err = sess.Dictate(ctx); err == nil {
				fmt.Println("Pulse Enter para enviar.")
			}
		case "/borrar", "/clear":
			err = sess.ClearHistory(ctx)
		case "/ayuda", "/help":
			fmt.Println(chatHelp)
		default:
			err = sess.Submit(ctx, line)
		}

		// Failures were already shown to the user as notices.
		if err != nil {
			log.Debug("chat command failed", "command", cmd, "error", err)
			if errors.Is(err, sidebar.ErrNoSuchItem) || errors.Is(err, errBadIndex) {
				fmt.Println("No existe ese elemento del historial.")
			}
		}
	}
}

var errBadIndex = errors.New("bad history index")

// openItem activates a 1-based sidebar position.
func openItem(ctx context.Context, sess *session.Session, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("%w: %q", errBadIndex, arg)
	}
	return sess.ActivateSidebarItem(ctx, n-1)
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify one news text and record it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			t := term.New(os.Stdout, cfg.Display.BarWidth)
			spk := speech.NewSpeaker(cfg.Speech.SpeakCommand, log)
			defer spk.Wait()

			a, err := openApp(session.Deps{Speaker: spk, Notifier: t})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Load(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.Submit(cmd.Context(), text); err != nil {
				return err
			}

			msgs := a.session.Snapshot().Messages
			if len(msgs) >= 2 {
				t.Print(msgs[len(msgs)-2:]...)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past classifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := term.New(os.Stdout, cfg.Display.BarWidth)

			a, err := openApp(session.Deps{Notifier: t})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Load(cmd.Context()); err != nil {
				return err
			}
			t.Sidebar(a.session.Snapshot().Sidebar)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [n]",
		Short: "Show the n-th past classification (as numbered by history)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := term.New(os.Stdout, cfg.Display.BarWidth)

			a, err := openApp(session.Deps{Notifier: t})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Load(cmd.Context()); err != nil {
				return err
			}
			if err := openItem(cmd.Context(), a.session, args[0]); err != nil {
				return fmt.Errorf("entry not found: %s", args[0])
			}
			t.Print(a.session.Snapshot().Messages...)
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole history",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := term.New(os.Stdout, cfg.Display.BarWidth)

			a, err := openApp(session.Deps{Notifier: t})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Historial borrado.")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and browser event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			origins := cfg.Server.Origins()
			hub := api.NewHub(api.OriginPatterns(origins), log)
			spk := speech.NewSpeaker(cfg.Speech.SpeakCommand, log)
			defer spk.Wait()

			deps := session.Deps{
				Speaker:    hub,
				Notifier:   hub,
				Recognizer: speech.NewRecognizer(cfg.Speech.ListenCommand),
				UI:         hub,
			}
			if cfg.Speech.SpeakCommand != "" {
				deps.Speaker = speakers{hub, spk}
			}

			a, err := openApp(deps)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Load(ctx); err != nil {
				return err
			}

			server := api.New(a.session, hub, origins, log)
			if a.ping != nil {
				server.SetHealthCheck(a.ping)
			}
			return server.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address (overrides NEWSCHAT_ADDR)")
	return cmd
}

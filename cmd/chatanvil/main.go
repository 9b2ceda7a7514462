package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatanvil/internal/chat"
	"chatanvil/internal/cli"
	"chatanvil/internal/config"
	"chatanvil/internal/hook"
	"chatanvil/internal/hook/handlers"
	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
	"chatanvil/internal/mcpserver"
	"chatanvil/internal/parser"
	"chatanvil/internal/provider"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	providerName string
	parserKey    string
	model        string
	apiKey       string
	baseURL      string
	temperature  float32
	maxTokens    int
	maxRetries   int
	systemPrompt string
	configPath   string
	logDir       string
	verbose      bool
	noColor      bool
	confirm      bool
	reasoning    bool
	extract      bool
	asJSON       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chatanvil",
		Short:         "One client for OpenAI, Claude, Groq, Ollama and OpenRouter",
		Long:          "chatanvil sends chat requests to several LLM providers through one interface,\nretrying transient failures and post-processing replies as markdown, JSON or XML.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&providerName, "provider", "p", "", "Provider: "+strings.Join(provider.Supported(), ", "))
	pf.StringVar(&parserKey, "parser", "", "Response parser: "+strings.Join(parser.Supported(), ", "))
	pf.StringVarP(&model, "model", "m", "", "Model to use (defaults per provider)")
	pf.StringVar(&apiKey, "api-key", "", "API key (defaults to <PROVIDER>_API_KEY)")
	pf.StringVar(&baseURL, "base-url", "", "Override the provider endpoint")
	pf.Float32Var(&temperature, "temperature", 0.7, "Sampling temperature")
	pf.IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens in the reply")
	pf.IntVar(&maxRetries, "max-retries", 3, "Retries for transient failures")
	pf.StringVarP(&systemPrompt, "system", "s", "", "System prompt")
	pf.StringVarP(&configPath, "config", "c", "", "Config file (yaml or toml)")
	pf.StringVar(&logDir, "log-dir", "", "Write chat transcripts under this directory")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug mode)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&confirm, "confirm", false, "Confirm every request before it is sent")
	pf.BoolVar(&reasoning, "reasoning", false, "Request a separate reasoning trace")

	askCmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Long:  "Send one stateless message. With no argument (or \"-\") the message is read from stdin.",
		RunE:  runAsk,
	}
	askCmd.Flags().BoolVar(&extract, "extract", false, "Also print code extracted by the parser")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the provider credential works",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}

	extractCmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract code blocks from text without calling a provider",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExtract,
	}
	extractCmd.Flags().BoolVar(&asJSON, "json", false, "Print blocks as JSON")

	parsersCmd := &cobra.Command{
		Use:   "parsers",
		Short: "List response parsers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, key := range parser.Supported() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers with their default model and credential variable",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printProviders(cmd.OutOrStdout())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the ask and extract_code tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runServeMCP,
	}

	rootCmd.AddCommand(askCmd, chatCmd, validateCmd, extractCmd, parsersCmd, providersCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	message, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	out := newRenderer(cmd.OutOrStdout())
	c, err := ask(ctx, s, message)
	if err != nil {
		return err
	}
	out.Completion(c)

	if extract {
		blocks, err := s.ExtractCode(c.Content)
		if err != nil {
			return err
		}
		out.CodeBlocks(blocks)
	}
	return nil
}

// ask is a stateless request; with --reasoning the full completion is kept.
func ask(ctx context.Context, s *chat.Session, message string) (llm.Completion, error) {
	opts := provider.CallOptions{Reasoning: reasoning}
	if !reasoning {
		content, err := s.GetResponse(ctx, message, opts)
		return llm.Completion{Content: content}, err
	}

	var msgs []llm.Message
	if sp := s.Provider().SystemPrompt(); sp != "" {
		msgs = append(msgs, llm.SystemMessage(sp))
	}
	msgs = append(msgs, llm.UserMessage(message))
	return s.GetChatCompletion(ctx, msgs, opts)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := newSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	r := &repl{
		session:   s,
		in:        cmd.InOrStdin(),
		out:       newRenderer(cmd.OutOrStdout()),
		reasoning: reasoning,
		progress:  cli.NewProgressIndicator(newWriter(cmd.ErrOrStderr())),
	}
	return r.run(ctx)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	w := newWriter(cmd.OutOrStdout())
	p := s.Provider()
	if !s.ValidateAPIKey(ctx) {
		w.WriteColored(fmt.Sprintf("✗ %s credential rejected (model %s)\n", p.Name(), p.Model()), cli.ColorRed)
		return fmt.Errorf("%s: invalid credential", p.Name())
	}
	w.WriteColored(fmt.Sprintf("✓ %s credential valid (model %s)\n", p.Name(), p.Model()), cli.ColorGreen)
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	key := parserKey
	if key == "" {
		key = "markdown"
	}
	p, err := parser.New(key)
	if err != nil {
		return err
	}
	blocks, err := p.ExtractCode(string(data))
	if err != nil {
		return fmt.Errorf("extract code with %s parser: %w", p.Name(), err)
	}

	if asJSON {
		if blocks == nil {
			blocks = []parser.CodeBlock{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	}
	newRenderer(cmd.OutOrStdout()).CodeBlocks(blocks)
	return nil
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdin belongs to the MCP transport
	confirm = false
	s, err := newSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	log := newLogger(nil)
	return mcpserver.New(s, log, version).Run(ctx)
}

// newSession loads config and builds a chat session from the flags.
// interactive enables the confirm hook.
func newSession(ctx context.Context, cmd *cobra.Command, interactive bool) (*chat.Session, error) {
	file, err := loadConfig()
	if err != nil {
		return nil, err
	}

	hooks := hook.NewManager()
	if interactive && (confirm || file.Hooks.ConfirmRequests) {
		hooks.Register(handlers.NewRequestConfirmHandler())
	}
	if file.Hooks.RetryNotice {
		hooks.Register(handlers.NewRetryNoticeHandler(cmd.ErrOrStderr()))
	}

	return chat.New(ctx, chat.Options{
		Provider:     providerName,
		Parser:       parserKey,
		SystemPrompt: systemPrompt,
		File:         file,
		Overrides:    overrides(cmd),
		Logger:       newLogger(file),
		Hooks:        hooks,
	})
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadWithDefaults()
}

// overrides keeps only the flags the user actually set so that env and
// file values still apply.
func overrides(cmd *cobra.Command) config.Overrides {
	flags := cmd.Flags()
	ov := config.Overrides{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		LogDir:  logDir,
	}
	if flags.Changed("temperature") {
		t := temperature
		ov.Temperature = &t
	}
	if flags.Changed("max-tokens") {
		ov.MaxTokens = maxTokens
	}
	if flags.Changed("max-retries") {
		n := maxRetries
		ov.MaxRetries = &n
	}
	if verbose {
		ov.LogLevel = "DEBUG"
	}
	return ov
}

// newLogger writes to stderr so stdout carries only replies.
func newLogger(file *config.Config) *logger.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" && file != nil {
		level = file.LogLevel
	}
	logLevel := logger.ParseLevel(level)
	if verbose {
		logLevel = logger.LevelDebug
	}
	log := logger.NewLogger(os.Stderr, logLevel)
	if noColor {
		log.SetColorMode(false)
	}
	return log
}

func newWriter(w io.Writer) *cli.Writer {
	cw := cli.NewWriter(w)
	cw.SetColorMode(!noColor)
	return cw
}

func newRenderer(w io.Writer) *cli.Renderer {
	return cli.NewRenderer(newWriter(w), true)
}

func readMessage(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", fmt.Errorf("empty message")
	}
	return message, nil
}

func printProviders(w io.Writer) {
	for _, name := range provider.Supported() {
		credential := config.EnvPrefix(name) + "_API_KEY"
		if !config.RequiresAPIKey(name) {
			credential = "(none)"
		}
		fmt.Fprintf(w, "%-12s %-45s %s\n", name, config.DefaultModel(name), credential)
	}
}

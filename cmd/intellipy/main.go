// Package main provides the IntelliPy CLI entry point.
// IntelliPy is a Python coding assistant that routes questions, edits and agent tasks to a
// configurable LLM provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intellipy/internal/completion"
	"intellipy/internal/config"
	"intellipy/internal/host"
	"intellipy/internal/logger"
	"intellipy/internal/panel"
	"intellipy/internal/providers"
	"intellipy/internal/shell"
	"intellipy/internal/version"
	"intellipy/pkg/intellitypes"
)

var (
	logLevel  string
	logFile   string
	testMode  bool
	workspace string
	style     string

	askMode  string
	askFile  string
	askLines string

	analyzeApply bool

	completeFile string
	completeLine int
	completeCol  int

	testProviders bool

	versionDetailed bool
	versionCheck    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "intellipy",
	Short: "IntelliPy - LLM coding assistant for Python projects",
	Long: `IntelliPy answers questions about Python code, proposes edits and runs multi-step agent tasks
against the files of a workspace, using Bedrock, Gemini, Anthropic, OpenAI, a custom HTTP endpoint
or a browser chat as the model backend.`,
	RunE:          runChat, // Default behavior is to run the interactive chat
	SilenceUsage:  true,
	SilenceErrors: true,
}

// chatCmd represents the chat command (explicit version of default behavior)
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask <message...>",
	Short: "Send one message and print the reply",
	Long: `Send one message in the selected mode. Mention files with @name.py and the whole workspace
with @workspace. Edit mode needs --file; --lines narrows the edit to a line range.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.py>",
	Short: "Analyze a Python file together with its related files",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Print an inline completion for a cursor position",
	RunE:  runComplete,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM providers",
	RunE:  runProviders,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the selected provider is configured",
	RunE:  runConfigValidate,
}

var configSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Persist a setting to the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to agent mode",
	RunE:  runTools,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Add global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	pf.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	pf.BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	pf.StringVarP(&workspace, "workspace", "w", "", "Workspace root [default: current directory]")
	pf.StringVar(&style, "style", "auto", "Markdown style (auto|dark|light|notty|ascii)")
	pf.String("provider", "", "LLM provider ("+providerNames()+")")
	pf.String("model", "", "Model for the selected provider")
	pf.String("region", "", "AWS region for Bedrock")

	// Bind flags to viper
	for _, name := range []string{"log-level", "log-file", "test-mode"} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	askCmd.Flags().StringVarP(&askMode, "mode", "m", "", "Chat mode (ask|edit|agent) [default: ask]")
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "Active document")
	askCmd.Flags().StringVarP(&askLines, "lines", "l", "", "Selected lines of the active document, N or N-M")

	analyzeCmd.Flags().BoolVar(&analyzeApply, "apply", false, "Apply proposed changes without asking")

	completeCmd.Flags().StringVarP(&completeFile, "file", "f", "", "File being edited")
	completeCmd.Flags().IntVar(&completeLine, "line", 1, "Cursor line, one-based")
	completeCmd.Flags().IntVar(&completeCol, "col", 0, "Cursor column, zero-based [default: end of line]")
	_ = completeCmd.MarkFlagRequired("file")

	providersCmd.Flags().BoolVar(&testProviders, "test", false, "Send a probe message through the selected provider")

	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed build information")
	versionCmd.Flags().StringVar(&versionCheck, "check", "", "Exit with an error unless the version satisfies a constraint")

	configCmd.AddCommand(configShowCmd, configValidateCmd, configSetCmd)
	rootCmd.AddCommand(chatCmd, askCmd, analyzeCmd, completeCmd, providersCmd, configCmd, toolsCmd, versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// Configure logger with CLI flags
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func providerNames() string {
	names := make([]string, 0, len(providers.AllTypes))
	for _, t := range providers.AllTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, "|")
}

func loadApp(cmd *cobra.Command, confirmer intellitypes.Confirmer) (*app, error) {
	return newApp(appOptions{
		workspace: workspace,
		style:     style,
		testMode:  testMode,
		flags:     cmd.Flags(),
	}, confirmer)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func runChat(cmd *cobra.Command, _ []string) error {
	logger.Info("Starting IntelliPy", "version", version.Version)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "intellipy> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer rl.Close()

	a, err := loadApp(cmd, host.NewTerminalConfirmer(rl, os.Stdout))
	if err != nil {
		return err
	}
	defer a.settings.Close()
	rl.Config.AutoComplete = shell.NewCompleter(a.mentions)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watcher, err := host.NewWatcher(a.ws.Root(), host.PythonFiles, func(string) { a.mentions.Invalidate() })
	if err != nil {
		logger.Warn("File watching disabled", "error", err)
	} else {
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("File watcher stopped", "error", err)
			}
		}()
	}

	fmt.Println(version.GetFormattedVersion() + " - workspace " + a.ws.Root())
	fmt.Println("Type a message to chat, /help for commands or /exit to quit.")
	return a.newShell().Run(ctx, rl)
}

func runAsk(cmd *cobra.Command, args []string) error {
	confirmer, closeConfirmer, err := host.NewReadlineConfirmer(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer closeConfirmer()

	a, err := loadApp(cmd, confirmer)
	if err != nil {
		return err
	}
	if askFile != "" {
		if err := a.open(askFile, askLines); err != nil {
			return err
		}
	}
	if askMode != "" {
		mode, err := intellitypes.ParseChatMode(askMode)
		if err != nil {
			return err
		}
		a.manager.SetMode(mode)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return a.newShell().Controller().Handle(ctx, panel.Action{
		Type:  panel.ActionSendMessage,
		Value: strings.Join(args, " "),
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	if err := a.open(args[0], ""); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	ctrl := a.newShell().Controller()
	if err := ctrl.Handle(ctx, panel.Action{Type: panel.ActionAnalyzeCurrentFile}); err != nil {
		return err
	}
	pending := ctrl.Pending()
	for _, e := range pending {
		if err := ctrl.Handle(ctx, panel.Action{Type: panel.ActionShowDiff, FilePath: e.Path}); err != nil {
			return err
		}
	}
	if analyzeApply && len(pending) > 0 {
		return ctrl.Handle(ctx, panel.Action{Type: panel.ActionApplyChanges})
	}
	return nil
}

func runComplete(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	text, err := a.ws.ReadFile(completeFile)
	if err != nil {
		return err
	}

	col := completeCol
	if !cmd.Flags().Changed("col") {
		col = -1
	}
	req, err := completionRequest(text, completeFile, completeLine, col)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	suggestion, err := completion.NewEngine(a.settings, completion.ProviderFunc(a.resolve)).Suggest(ctx, req)
	if err != nil {
		return err
	}
	if suggestion != "" {
		fmt.Println(suggestion)
	}
	return nil
}

// completionRequest builds a request for a one-based line. A negative col means end of line.
func completionRequest(text, path string, line, col int) (completion.Request, error) {
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return completion.Request{}, fmt.Errorf("line %d is outside %s (1-%d)", line, path, len(lines))
	}
	if col < 0 || col > len(lines[line-1]) {
		col = len(lines[line-1])
	}
	return completion.Request{
		Text:       text,
		LanguageID: host.LanguageID(path),
		Line:       line - 1,
		Col:        col,
	}, nil
}

func runProviders(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	catalog, err := providers.Catalog()
	if err != nil {
		return err
	}

	current := config.Read(a.settings).Provider
	rows := [][]string{{"", "PROVIDER", "NAME", "DESCRIPTION"}}
	for _, item := range catalog {
		marker := ""
		if string(item.Value) == current {
			marker = "*"
		}
		rows = append(rows, []string{marker, string(item.Value), item.Label, item.Description})
	}
	fmt.Print(a.renderer.Table(rows))

	if !testProviders {
		return nil
	}
	p, err := a.resolve()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()
	if err := providers.TestAccess(ctx, p); err != nil {
		return fmt.Errorf("%s is not reachable: %w", p.Name(), err)
	}
	fmt.Printf("%s is reachable.\n", p.Name())
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	rows := [][]string{{"SETTING", "VALUE"}}
	for _, name := range config.Names() {
		rows = append(rows, []string{name, maskSecret(name, a.settings.GetString(config.Key(name)))})
	}
	fmt.Print(a.renderer.Table(rows))
	if file := a.settings.ConfigFile(); file != "" {
		fmt.Printf("\nConfiguration file: %s\n", file)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	if err := validateSettings(config.Read(a.settings)); err != nil {
		return err
	}
	if _, err := a.resolve(); err != nil {
		return err
	}
	fmt.Println("Configuration is valid.")
	return nil
}

// validateSettings checks the settings the selected provider needs before any network call.
func validateSettings(snap config.Snapshot) error {
	switch providers.Type(snap.Provider) {
	case providers.TypeCustom:
		return config.ValidateEndpoint(snap.CustomEndpoint)
	case providers.TypeGemini:
		if snap.GeminiAPIKey == "" {
			return fmt.Errorf("%s is not set", config.Key(config.KeyGeminiAPIKey))
		}
	case providers.TypeAnthropic:
		if snap.AnthropicAPIKey == "" {
			return fmt.Errorf("%s is not set", config.Key(config.KeyAnthropicAPIKey))
		}
	case providers.TypeOpenAI:
		if snap.OpenAIAPIKey == "" {
			return fmt.Errorf("%s is not set", config.Key(config.KeyOpenAIAPIKey))
		}
	case providers.TypeBedrock:
		if snap.AWSRegion == "" {
			return fmt.Errorf("%s is not set", config.Key(config.KeyAWSRegion))
		}
	case providers.TypeBrowser:
		return config.ValidateEndpoint(snap.BrowserChatURL)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	name, value := args[0], args[1]
	known := false
	for _, n := range config.Names() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown setting %q (known: %s)", name, strings.Join(config.Names(), ", "))
	}
	if name == config.KeyCustomEndpoint {
		if err := config.ValidateEndpoint(value); err != nil {
			return err
		}
	}

	a.settings.Set(config.Key(name), value)
	if err := a.settings.Save(""); err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s\n", name, a.settings.ConfigFile())
	return nil
}

func runTools(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd, nil)
	if err != nil {
		return err
	}
	rows := [][]string{{"TOOL", "DESCRIPTION"}}
	for _, name := range a.tools.AvailableTools() {
		desc, _ := a.tools.ToolDescription(name)
		rows = append(rows, []string{name, desc})
	}
	fmt.Print(a.renderer.Table(rows))
	return nil
}

func runVersion(_ *cobra.Command, _ []string) error {
	if versionCheck != "" {
		ok, err := version.Satisfies(versionCheck)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("version %s does not satisfy %s", version.Version, versionCheck)
		}
	}
	if versionDetailed {
		fmt.Println(version.GetDetailedVersion())
		return nil
	}
	fmt.Println(version.GetFormattedVersion())
	return nil
}

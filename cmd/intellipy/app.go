package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"intellipy/internal/analyzer"
	"intellipy/internal/chat"
	"intellipy/internal/config"
	"intellipy/internal/host"
	"intellipy/internal/mentions"
	"intellipy/internal/panel"
	"intellipy/internal/providers"
	"intellipy/internal/render"
	"intellipy/internal/shell"
	"intellipy/internal/tools"
	"intellipy/pkg/intellitypes"
)

// modelKeys maps each provider to the setting --model overrides.
var modelKeys = map[providers.Type]string{
	providers.TypeBedrock:   config.KeyModelID,
	providers.TypeCustom:    config.KeyCustomModel,
	providers.TypeGemini:    config.KeyGeminiModel,
	providers.TypeAnthropic: config.KeyAnthropicModel,
	providers.TypeOpenAI:    config.KeyOpenAIModel,
}

// app holds the collaborators shared by every command.
type app struct {
	settings *config.Settings
	ws       *host.Workspace
	editor   *host.StaticEditor
	outline  *host.PythonOutline
	mentions *mentions.Registry
	tools    *tools.ToolSystem
	manager  *chat.Manager
	renderer *render.Renderer
	resolve  chat.ProviderFunc
}

// appOptions are the global flag values.
type appOptions struct {
	workspace string
	style     string
	testMode  bool
	flags     *pflag.FlagSet
}

func newApp(opts appOptions, confirmer intellitypes.Confirmer) (*app, error) {
	root := opts.workspace
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}
	ws, err := host.NewWorkspace(root)
	if err != nil {
		return nil, err
	}

	settings, err := config.Load(ws.Root())
	if err != nil {
		return nil, err
	}
	if err := applyFlags(settings, opts.flags); err != nil {
		return nil, err
	}

	renderer, err := render.New(opts.style, render.DefaultWordWrap)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings: settings,
		ws:       ws,
		editor:   host.NewStaticEditor(ws),
		outline:  host.NewPythonOutline(ws),
		renderer: renderer,
	}
	a.resolve = func() (intellitypes.Provider, error) {
		return providers.Resolve(a.settings, providers.Deps{})
	}
	a.mentions = mentions.NewRegistry(ws, a.editor, a.outline)
	a.tools = tools.NewToolSystem(tools.Env{
		Workspace: ws,
		Editor:    a.editor,
		Runner:    host.NewShellRunner(),
	}, confirmer)
	a.manager = chat.NewManager(a.resolve,
		chat.WithEditor(a.editor),
		chat.WithTools(a.tools),
		chat.WithTestMode(opts.testMode),
	)
	a.manager.CreateSession()
	return a, nil
}

// applyFlags copies explicitly set provider flags into the settings.
func applyFlags(settings *config.Settings, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	if f := flags.Lookup("provider"); f != nil && f.Changed {
		if err := settings.Viper().BindPFlag(config.Key(config.KeyProvider), f); err != nil {
			return err
		}
	}
	if f := flags.Lookup("region"); f != nil && f.Changed {
		if err := settings.Viper().BindPFlag(config.Key(config.KeyAWSRegion), f); err != nil {
			return err
		}
	}
	if f := flags.Lookup("model"); f != nil && f.Changed {
		provider := providers.Type(config.Read(settings).Provider)
		key, ok := modelKeys[provider]
		if !ok {
			return fmt.Errorf("provider %s does not take a model", provider)
		}
		settings.Set(config.Key(key), f.Value.String())
	}
	return nil
}

// newShell creates a front end writing to the terminal.
func (a *app) newShell() *shell.Shell {
	return shell.New(shell.Deps{
		Panel: panel.Deps{
			Manager:  a.manager,
			Provider: a.resolve,
			Analyzer: analyzer.New(a.ws),
			Mentions: a.mentions,
			Editor:   a.editor,
			Store:    a.ws,
		},
		Tools:     a.tools,
		Workspace: a.ws,
		Editor:    a.editor,
		Renderer:  a.renderer,
		Out:       os.Stdout,
	})
}

// open makes file the active document with an optional "N" or "N-M" line selection.
func (a *app) open(file, lines string) error {
	sel, err := host.ParseLineRange(lines)
	if err != nil {
		return err
	}
	if err := a.editor.Open(file); err != nil {
		return err
	}
	a.editor.Select(sel)
	if _, ok := a.editor.ActiveDocument(); !ok {
		return fmt.Errorf("cannot read %s", file)
	}
	return nil
}

// maskSecret hides all but the last four characters of API keys.
func maskSecret(name, value string) string {
	if value == "" || !strings.HasSuffix(strings.ToLower(name), "apikey") {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

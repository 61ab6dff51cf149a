// Package chat implements the chat mode manager: it owns the current mode and the in-memory
// sessions, and runs the Ask, Edit and Agent protocols against the active provider.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"intellipy/internal/logger"
	"intellipy/internal/testutils"
	"intellipy/internal/tools"
	"intellipy/pkg/intellitypes"
)

// ProviderFunc resolves the provider to use for one call. It is invoked on every provider
// request so configuration changes take effect immediately.
type ProviderFunc func() (intellitypes.Provider, error)

// Option configures a Manager.
type Option func(*Manager)

// WithEditor attaches the host editor used by Edit mode.
func WithEditor(editor intellitypes.Editor) Option {
	return func(m *Manager) { m.editor = editor }
}

// WithTools attaches a tool system. Agent mode then advertises the tools and executes the
// invocations found in the execution reply.
func WithTools(ts *tools.ToolSystem) Option {
	return func(m *Manager) { m.tools = ts }
}

// WithTestMode makes session ids and timestamps deterministic.
func WithTestMode(testMode bool) Option {
	return func(m *Manager) { m.testMode = testMode }
}

// Manager is the chat mode manager. Mode changes and session bookkeeping are serialized;
// provider calls run without holding the lock, so concurrent messages are last-write-wins.
type Manager struct {
	resolve  ProviderFunc
	editor   intellitypes.Editor
	tools    *tools.ToolSystem
	testMode bool

	mu       sync.Mutex
	mode     intellitypes.ChatMode
	sessions map[string]*intellitypes.ChatSession
	activeID string
}

// NewManager creates a Manager in Ask mode with no sessions.
func NewManager(resolve ProviderFunc, opts ...Option) *Manager {
	m := &Manager{
		resolve:  resolve,
		mode:     intellitypes.ModeAsk,
		sessions: make(map[string]*intellitypes.ChatSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetMode switches the current mode and retags the active session.
func (m *Manager) SetMode(mode intellitypes.ChatMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	if s, ok := m.sessions[m.activeID]; ok {
		s.Mode = mode
	}
	logger.Debug("Chat mode changed", "mode", mode)
}

// GetMode returns the current mode.
func (m *Manager) GetMode() intellitypes.ChatMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// CreateSession creates a session in the current mode, makes it active and returns its id.
func (m *Manager) CreateSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := testutils.GenerateUUID(m.testMode)
	for {
		if _, exists := m.sessions[id]; !exists {
			break
		}
		id = testutils.GenerateUUID(m.testMode)
	}

	m.sessions[id] = &intellitypes.ChatSession{
		ID:        id,
		Mode:      m.mode,
		Context:   intellitypes.NewChatContext(),
		CreatedAt: testutils.GetCurrentTime(m.testMode),
	}
	m.activeID = id
	logger.ServiceOperation("chat", "create_session", id)
	return id
}

// GetActiveSession returns a copy of the active session, or nil when none is active.
// Later messages are not reflected in the copy.
func (m *Manager) GetActiveSession() *intellitypes.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[m.activeID].Clone()
}

// SwitchSession makes an existing session active. Other sessions are kept.
func (m *Manager) SwitchSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %q not found", id)
	}
	m.activeID = id
	return nil
}

// SessionIDs lists the ids of every held session, oldest first.
func (m *Manager) SessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.sessions[ids[i]], m.sessions[ids[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return ids[i] < ids[j]
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return ids
}

// ProcessMessage runs the protocol of the current mode. Failures are returned as an assistant
// message whose content starts with "Error:". When a session is active, the user message and the
// reply are appended to it.
func (m *Manager) ProcessMessage(ctx context.Context, message string, rc intellitypes.RequestContext) intellitypes.ChatMessage {
	mode := m.GetMode()
	logger.ServiceOperation("chat", "process_message", mode, len(message))

	var reply intellitypes.ChatMessage
	switch mode {
	case intellitypes.ModeEdit:
		reply = m.processEdit(ctx, message)
	case intellitypes.ModeAgent:
		reply = m.processAgent(ctx, message, rc)
	default:
		reply = m.processAsk(ctx, message, rc)
	}

	m.record(mode, message, rc, reply)
	return reply
}

func (m *Manager) record(mode intellitypes.ChatMode, message string, rc intellitypes.RequestContext, reply intellitypes.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[m.activeID]
	if !ok {
		return
	}

	s.Messages = append(s.Messages,
		intellitypes.ChatMessage{Role: intellitypes.RoleUser, Content: message, Mode: mode},
		reply,
	)
	for _, p := range rc.FilePaths() {
		s.Context.ReferencedFiles[p] = struct{}{}
	}
	for _, sym := range rc.Symbols {
		s.Context.ReferencedSymbols[sym] = struct{}{}
	}
	if rc.SelectedText != "" {
		s.Context.SelectedText = rc.SelectedText
	}
	if reply.Metadata != nil && len(reply.Metadata.Edits) > 0 {
		s.Context.ActiveFile = reply.Metadata.Edits[0].Path
	}
}

func (m *Manager) provider() (intellitypes.Provider, error) {
	if m.resolve == nil {
		return nil, fmt.Errorf("no provider configured")
	}
	return m.resolve()
}

// send resolves the provider and sends one prompt.
func (m *Manager) send(ctx context.Context, prompt, promptContext string) (string, error) {
	p, err := m.provider()
	if err != nil {
		return "", err
	}
	logger.ProviderCall(p.Name(), "", len(prompt), len(promptContext))
	return p.SendMessage(ctx, prompt, promptContext)
}

func errorMessage(mode intellitypes.ChatMode, err error) intellitypes.ChatMessage {
	logger.Warn("Chat request failed", "mode", mode, "error", err)
	return intellitypes.ChatMessage{
		Role:    intellitypes.RoleAssistant,
		Content: "Error: " + err.Error(),
		Mode:    mode,
	}
}

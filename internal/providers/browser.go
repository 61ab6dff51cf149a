package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/browser"

	"intellipy/internal/logger"
)

const (
	browserName     = "Microsoft 365 Copilot"
	defaultChatURL  = "https://m365.cloud.microsoft.com/chat/?auth=1"
	handoffComplete = "Microsoft 365 Copilot opened in browser with your query pre-filled. Please continue your conversation there."
)

// BrowserProvider hands the query off to a browser-based chat product. It never waits for an answer:
// a nil error means the hand-off happened.
type BrowserProvider struct {
	chatURL  string
	openURL  func(url string) error
	copyText func(text string) error
}

// NewBrowserProvider creates a hand-off provider. Nil functions select the system browser and clipboard.
func NewBrowserProvider(chatURL string, openURL func(string) error, copyText func(string) error) *BrowserProvider {
	if chatURL == "" {
		chatURL = defaultChatURL
	}
	if openURL == nil {
		openURL = browser.OpenURL
	}
	if copyText == nil {
		copyText = copyToClipboard
	}
	return &BrowserProvider{chatURL: chatURL, openURL: openURL, copyText: copyText}
}

// Name returns the provider display name.
func (p *BrowserProvider) Name() string {
	return browserName
}

// DeepLink returns the chat URL with the query pre-filled.
func (p *BrowserProvider) DeepLink(query string) string {
	sep := "&"
	if !strings.Contains(p.chatURL, "?") {
		sep = "?"
	}
	return p.chatURL + sep + "q=" + url.QueryEscape(query)
}

// SendMessage opens the deep link, falling back to copying the query to the clipboard.
// Context is not forwarded; the browser product has no channel for it.
func (p *BrowserProvider) SendMessage(_ context.Context, message string, _ string) (string, error) {
	link := p.DeepLink(message)
	logger.Debug("Opening browser hand-off", "provider", "m365copilot", "query_length", len(message))

	err := p.openURL(link)
	if err == nil {
		return handoffComplete, nil
	}
	logger.Warn("Failed to open browser, falling back to clipboard", "error", err)

	copied := "Your query has been copied to clipboard"
	if err = p.copyText(message); err != nil {
		logger.Warn("Failed to copy query to clipboard", "error", err)
		copied = "Copy your query"
	}

	return fmt.Sprintf(`Unable to open Microsoft 365 Copilot directly. %s:

"%s"

Please:
1. Open %s in your browser
2. Paste your query into Microsoft 365 Copilot
3. Continue your conversation there

Note: You need a Microsoft 365 Business license with Copilot access.`, copied, message, p.chatURL), nil
}

package actions

import (
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// BrowserNavigator opens URLs in the desktop's default browser.
type BrowserNavigator struct {
	Logger zerolog.Logger
}

func (n *BrowserNavigator) Open(url string) error {
	n.Logger.Info().Str("url", url).Msg("opening browser")

	return browser.OpenURL(url)
}

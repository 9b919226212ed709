//go:build !windows

package console

import (
	"context"
	"fmt"
	"regexp"
)

type unsupportedBridge struct{}

func newSystemBridge(cfg Config, pattern *regexp.Regexp, deps Dependencies) (Bridge, error) {
	deps.Logger.Printf("console automation unavailable on this platform; connect attempts will fail")
	return unsupportedBridge{}, nil
}

func (unsupportedBridge) IssueConnect(ctx context.Context, endpoint string) error {
	return fmt.Errorf("%w: window automation requires Windows", ErrClientNotFound)
}

func (unsupportedBridge) OpenConsole(ctx context.Context) (Reader, error) {
	return nil, fmt.Errorf("%w: window automation requires Windows", ErrClientNotFound)
}

func (unsupportedBridge) Celebrate(ctx context.Context) error {
	return nil
}

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

// PromptSecret asks for the access key secret on the terminal when running
// in cli mode, the provider needs one and none was supplied. It does nothing
// when in is not a terminal.
func PromptSecret(cfg *Config, in *os.File, out io.Writer) error {
	if cfg.Mode != ModeCLI || cfg.AccessKeySecret != "" {
		return nil
	}
	if !provider.RequiredCredentials(cfg.Provider).Secret {
		return nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(out, "%s access key secret: ", cfg.Provider)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("error reading secret from terminal: %w", err)
	}
	cfg.AccessKeySecret = strings.TrimSpace(string(b))
	return nil
}

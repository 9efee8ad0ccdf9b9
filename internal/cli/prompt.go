package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptSecret reads a secret from stdin without echo when stdin is a terminal
func promptSecret(out io.Writer, in *os.File, label string) (string, error) {
	fmt.Fprint(out, label)

	// Try to read password without echo
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out) // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	// Non-terminal, read from stdin
	return readSecret(in)
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// maskSecret shows only the edges of a secret
func maskSecret(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 12 {
		return "****"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/tonio1998/snsulms-sub001/internal/app"
)

// passphraseEnv lets scripts and the daemon unlock the cache without a terminal.
const passphraseEnv = "LMSSYNC_PASSPHRASE"

func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// newPassphrase asks for a passphrase twice.
func newPassphrase() (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}
	first, err := readPassphrase("New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase must not be empty")
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

// unlock opens an encrypted cache. Without a passphrase source the cache
// stays locked: writes still go through and reads behave as misses.
func unlock(a *app.LMSApp) error {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "warning: cache is encrypted and no passphrase is available; cached data will not be shown")
			return nil
		}
		p, err := readPassphrase("Cache passphrase: ")
		if err != nil {
			return err
		}
		passphrase = p
	}
	if err := a.Unlock(passphrase); err != nil {
		return fmt.Errorf("unlocking cache: %w", err)
	}
	return nil
}

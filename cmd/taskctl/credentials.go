package main

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const keyringService = "taskboard"

// errNotLoggedIn is returned when no token is stored for the server.
var errNotLoggedIn = errors.New("not logged in, run taskctl login")

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/taskboard/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("taskboard-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func saveToken(ring keyring.Keyring, server, token string) error {
	err := ring.Set(keyring.Item{
		Key:   server,
		Data:  []byte(token),
		Label: "taskboard token for " + server,
	})
	if err != nil {
		return fmt.Errorf("storing token for %q: %w", server, err)
	}
	return nil
}

func loadToken(ring keyring.Keyring, server string) (string, error) {
	item, err := ring.Get(server)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("reading token for %q: %w", server, err)
	}
	return string(item.Data), nil
}

func deleteToken(ring keyring.Keyring, server string) error {
	err := ring.Remove(server)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing token for %q: %w", server, err)
	}
	return nil
}

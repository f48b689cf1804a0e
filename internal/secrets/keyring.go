// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/zalando/go-keyring"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// keysIndexSuffix names the entry holding a service's key list as JSON.
// go-keyring cannot enumerate keys on its own.
const keysIndexSuffix = "::keys-index"

// KeyringStore implements Store over the OS keyring: Keychain on macOS,
// secret-service on Linux and Credential Manager on Windows.
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkRef(op, service, key string) error {
	switch {
	case service == "":
		return autoirerr.New(autoirerr.CodeSecretInvalidInput, "secret "+op+": service must not be empty")
	case key == "":
		return autoirerr.New(autoirerr.CodeSecretInvalidInput, "secret "+op+": key must not be empty")
	case strings.HasSuffix(key, keysIndexSuffix):
		return autoirerr.Errorf(autoirerr.CodeSecretInvalidInput, "secret %s: key %q is reserved", op, key)
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return autoirerr.Wrapf(err, autoirerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.addToIndex(service, key)
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", autoirerr.Errorf(autoirerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", autoirerr.Wrapf(err, autoirerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return autoirerr.Errorf(autoirerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return autoirerr.Wrapf(err, autoirerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.removeFromIndex(service, key)
}

// List returns the stored key names in sorted order.
func (s *KeyringStore) List(service string) ([]string, error) {
	if service == "" {
		return nil, autoirerr.New(autoirerr.CodeSecretInvalidInput, "secret list: service must not be empty")
	}
	keys, err := s.loadIndex(service)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	indexKey := service + keysIndexSuffix
	raw, err := keyring.Get(service, indexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, autoirerr.Wrapf(err, autoirerr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, autoirerr.Wrapf(err, autoirerr.CodeSecretListFailure, "decoding key index for service %s", service)
	}

	return keys, nil
}

func (s *KeyringStore) saveIndex(service string, keys []string) error {
	indexKey := service + keysIndexSuffix

	if len(keys) == 0 {
		if delErr := keyring.Delete(service, indexKey); delErr != nil {
			slog.Debug("removing empty secret index", "service", service, "error", delErr)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return autoirerr.Wrapf(err, autoirerr.CodeSecretListFailure, "encoding key index for service %s", service)
	}

	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return autoirerr.Wrapf(err, autoirerr.CodeSecretListFailure, "saving key index for service %s", service)
	}

	return nil
}

func (s *KeyringStore) addToIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.saveIndex(service, append(keys, key))
}

func (s *KeyringStore) removeFromIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}
	return s.saveIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

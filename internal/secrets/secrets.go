// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

// Package secrets keeps provider API keys and notifier tokens out of the
// config file. Config values of the form keyring://service/key are
// replaced with the stored secret after the config is read.
package secrets

// Store provides secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches a secret. A missing key yields CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes a secret. A missing key yields CodeSecretNotFound.
	Delete(service, key string) error

	// List returns the key names stored under service.
	List(service string) ([]string, error)
}

package config

import (
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shinosaki/webpush-worker-go/rfc8291"
)

// Config is the user agent state that must survive restarts: the keys the
// application server encrypts to, and the push service session.
type Config struct {
	AuthSecret  []byte
	PrivateKey  *ecdh.PrivateKey
	UAID        string
	ChannelIDs  []string
	AppServer   string
	Label       string
	DeviceToken string
}

type SerializedConfig struct {
	AuthSecret  string   `json:"auth_secret"`
	PrivateKey  string   `json:"private_key"`
	UAID        string   `json:"uaid"`
	ChannelIDs  []string `json:"channel_ids"`
	AppServer   string   `json:"app_server,omitempty"`
	Label       string   `json:"label,omitempty"`
	DeviceToken string   `json:"device_token,omitempty"`
}

// Load reads the state file. A missing file, or missing keys, yield freshly
// generated secrets.
func Load(path string) (*Config, error) {
	serialized := &SerializedConfig{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, serialized); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	authSecret, _, privateKey, err := rfc8291.NewSecrets(ecdh.P256())
	if err != nil {
		return nil, err
	}

	if serialized.AuthSecret != "" {
		authSecret, err = base64.RawURLEncoding.DecodeString(serialized.AuthSecret)
		if err != nil {
			return nil, fmt.Errorf("config: decode auth_secret: %w", err)
		}
		if len(authSecret) != rfc8291.AuthSecretLen {
			return nil, rfc8291.ErrInvalidAuthSecret
		}
	}

	if serialized.PrivateKey != "" {
		b, err := base64.RawURLEncoding.DecodeString(serialized.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("config: decode private_key: %w", err)
		}
		if privateKey, err = ecdh.P256().NewPrivateKey(b); err != nil {
			return nil, fmt.Errorf("config: load private_key: %w", err)
		}
	}

	return &Config{
		AuthSecret:  authSecret,
		PrivateKey:  privateKey,
		UAID:        serialized.UAID,
		ChannelIDs:  serialized.ChannelIDs,
		AppServer:   serialized.AppServer,
		Label:       serialized.Label,
		DeviceToken: serialized.DeviceToken,
	}, nil
}

func Save(path string, config *Config) error {
	serialized := &SerializedConfig{
		AuthSecret:  base64.RawURLEncoding.EncodeToString(config.AuthSecret),
		PrivateKey:  base64.RawURLEncoding.EncodeToString(config.PrivateKey.Bytes()),
		UAID:        config.UAID,
		ChannelIDs:  config.ChannelIDs,
		AppServer:   config.AppServer,
		Label:       config.Label,
		DeviceToken: config.DeviceToken,
	}

	data, err := json.MarshalIndent(serialized, "", "  ")
	if err != nil {
		return err
	}

	// Holds the private key.
	return os.WriteFile(path, data, 0600)
}

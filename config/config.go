package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/fatih/structs"
	"github.com/jeremywohl/flatten"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ParseConfig loads config.yaml from the first matching path, with env overrides.
func ParseConfig[T interface{}](configFilePaths []string) (*T, error) {
	return ParseConfigWithEmbedded[T](configFilePaths, nil)
}

// ParseConfigWithEmbedded tries to load config from disk,
// and if the file is NOT found, falls back to embeddedYAML (if provided).
// Without either, env vars alone populate the struct.
func ParseConfigWithEmbedded[T interface{}](configFilePaths []string, embeddedYAML []byte) (*T, error) {
	v := viper.New()
	for _, p := range configFilePaths {
		v.AddConfigPath(p)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := bindAllConfigKeys[T](v); err != nil {
		return nil, err
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nfErr viper.ConfigFileNotFoundError
		if !errors.As(err, &nfErr) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if len(embeddedYAML) > 0 {
			if err2 := v.ReadConfig(bytes.NewReader(embeddedYAML)); err2 != nil {
				return nil, errors.Wrap(err2, "failed to load embedded default config")
			}
		}
	}

	var c T
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "Unable to decode into struct")
	}

	return &c, nil
}

// LoadDotEnv loads KEY=VALUE files into the process env without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "failed to load env file %s", p)
		}
	}
	return nil
}

// Workaround for major viper issue with env variables, documented here
// https://github.com/spf13/viper/issues/761
func bindAllConfigKeys[T interface{}](v *viper.Viper) error {
	var cd T
	confMap := structs.Map(cd)

	flat, err := flatten.Flatten(confMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten config")
	}

	for key := range flat {
		if err := v.BindEnv(key); err != nil {
			return errors.Wrapf(err, "Unable to bind env var: %s", key)
		}
	}
	return nil
}

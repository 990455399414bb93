package config

import (
	// Go Internal Packages
	"os"
	"strings"

	// External Packages
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
)

// Load reads the defaults and overlays the yaml file at path, if any. A
// missing file is not an error so the defaults alone can run the service.
func Load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(DefaultConfig), yaml.Parser()); err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}
	return k, nil
}

// Unmarshal decodes k into a Config and applies environment secrets.
func Unmarshal(k *koanf.Koanf) (Config, error) {
	cfg := Config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	return LoadSecrets(cfg), nil
}

// LoadSecrets overrides connection settings from the environment
func LoadSecrets(c Config) Config {
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("REDIS_URI"); v != "" {
		c.Redis.URI = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv("IS_PROD_MODE"); v != "" {
		c.IsProdMode = v == "true"
	}
	return c
}

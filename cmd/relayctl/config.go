package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	// RELAYCTL_COLOURS colours conversation statuses
	Colours bool `envconfig:"RELAYCTL_COLOURS" default:"true"`
	Limit   int  `envconfig:"RELAYCTL_LIMIT" default:"50"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

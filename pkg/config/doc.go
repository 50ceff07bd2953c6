// Package config loads env-tagged configuration structs, wrapping
// github.com/joho/godotenv (optional .env file) and
// github.com/caarlos0/env/v11 (struct parsing) behind a tiny cached API.
//
//	var cfg session.Config
//	config.MustLoad(&cfg)
//
// Each configuration type is parsed at most once per process; Reset exists
// for tests that need to reload under a different environment.
package config

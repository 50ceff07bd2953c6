package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided to config loader")
)

var (
	mu             sync.Mutex
	loaded         = make(map[string]any)
	defaultEnvOnce sync.Once
)

// Load populates cfg from the environment, reading a .env file from the
// working directory first if one exists. Each configuration type is parsed
// once per process; later calls return the cached copy, so every component
// sees identical settings.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilPointer
	}
	defaultEnvOnce.Do(func() {
		_ = godotenv.Load() // a missing .env file is fine
	})

	key := typeName[T]()

	mu.Lock()
	defer mu.Unlock()
	if cached, ok := loaded[key]; ok {
		*cfg = cached.(T)
		return nil
	}
	if err := env.Parse(cfg); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	loaded[key] = *cfg
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Reset clears the cache so tests can reload with different environments.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	loaded = make(map[string]any)
}

func typeName[T any]() string {
	var zero T
	if t := reflect.TypeOf(zero); t != nil {
		return t.String()
	}
	return fmt.Sprintf("%T", *new(T))
}

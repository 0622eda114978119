package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup configuration validation.
type ValidatorOptions struct {
	VerifyConnectivity bool // ping the candle store when it is columnar
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for CLI startup.
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{VerifyConnectivity: true, Timeout: 5 * time.Second}
}

// Validator performs startup checks beyond field-level Validate(), grounded
// on the teacher's ValidateStartup connectivity-check idiom, trimmed to the
// one external dependency this module has: the columnar candle store.
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator.
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{config: config, options: options}
}

// ValidateStartup checks field-level validity and, for a columnar candle
// store, that the database is reachable.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	if errs := v.config.Validate(); len(errs) > 0 {
		return errs
	}

	if v.options.VerifyConnectivity && v.config.CandleStore.Kind == "columnar" {
		if err := v.checkCandleStoreConnectivity(ctx); err != nil {
			return fmt.Errorf("candle store connectivity check failed: %w", err)
		}
	}

	log.Info().Msg("configuration validation completed successfully")
	return nil
}

func (v *Validator) checkCandleStoreConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(connCtx, v.config.CandleStore.Path)
	if err != nil {
		return fmt.Errorf("creating candle store connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("pinging candle store: %w", err)
	}
	return nil
}

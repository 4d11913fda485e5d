package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultID is the identity of the vault this instance serves.
	VaultID string

	// VaultAuthority is the identity permitted to initialize the vault.
	VaultAuthority string

	// BaseAssetID is the deposit asset identifier (e.g. a USDC denom).
	BaseAssetID string

	// TreasuryAccount receives distribution fees.
	TreasuryAccount string
	// FeeAccount receives sale fees.
	FeeAccount string

	// Schedule is the vault's fee configuration.
	Schedule types.FeeSchedule
)

// Defaults matching the reference deployment.
const (
	DefaultSaleFeeBps          = 250 // 2.5%
	DefaultDistributionFeeBps  = 50  // 0.5%
	DefaultReferenceAssetValue = 1_000_000
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Identity and account variables are required; the fee
// schedule falls back to the reference deployment's rates.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultID, err = getEnv("VAULT_ID")
	if err != nil {
		return err
	}

	VaultAuthority, err = getEnv("VAULT_AUTHORITY")
	if err != nil {
		return err
	}

	BaseAssetID, err = getEnv("BASE_ASSET_ID")
	if err != nil {
		return err
	}

	TreasuryAccount, err = getEnv("TREASURY_ACCOUNT")
	if err != nil {
		return err
	}

	FeeAccount, err = getEnv("FEE_ACCOUNT")
	if err != nil {
		return err
	}

	saleFee, err := getEnvAsUint16("SALE_FEE_BPS", DefaultSaleFeeBps)
	if err != nil {
		return err
	}
	distributionFee, err := getEnvAsUint16("DISTRIBUTION_FEE_BPS", DefaultDistributionFeeBps)
	if err != nil {
		return err
	}
	referenceValue, err := getEnvAsUint64("REFERENCE_ASSET_VALUE", DefaultReferenceAssetValue)
	if err != nil {
		return err
	}

	policy := types.SharePolicy(getEnvWithDefault("SHARE_POLICY", string(types.ShareProportional)))

	Schedule = types.FeeSchedule{
		SaleFeeBps:          saleFee,
		DistributionFeeBps:  distributionFee,
		ReferenceAssetValue: referenceValue,
		Policy:              policy,
	}
	if err := Schedule.Validate(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultID", VaultID).
		Uint16("SaleFeeBps", Schedule.SaleFeeBps).
		Uint16("DistributionFeeBps", Schedule.DistributionFeeBps).
		Str("SharePolicy", string(Schedule.Policy)).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable with a fallback.
func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsUint64 retrieves an environment variable as a uint64, falling back
// to the default when unset. Returns error if set but invalid.
func getEnvAsUint64(key string, defaultValue uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint16 retrieves an environment variable as a uint16, falling back
// to the default when unset. Returns error if set but invalid.
func getEnvAsUint16(key string, defaultValue uint16) (uint16, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 16)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint16, got: " + valueStr)
	}
	return uint16(value), nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string

	LogMode string
	LogDir  string

	WarehouseGraphQLEndpoint string
	WarehouseRefreshEndpoint string
	WarehouseAccessToken     string
	WarehouseRefreshToken    string
	WarehouseID              string
	WarehouseRateLimitRPS    int
	WarehouseTimeoutMs       int
	WarehouseThrottleCapSec  int

	OpsDBBaseURL      string
	OpsDBAPIKey       string
	OpsDBBaseID       string
	OpsDBMetadataView string

	ShopGraphQLEndpoint   string
	ShopAPIToken          string
	ShopPollIntervalSec   int
	FulfillmentLocationID string

	SheetsCredentialsFile string
	SheetsClientID        string
	SheetsClientSecret    string
	SheetsRefreshToken    string
	SheetsSpreadsheetID   string
	SheetsWorksheet       string

	ServerAddr string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogMode: getEnv("LOG_MODE", "debug"),
		LogDir:  getEnv("LOG_DIR", filepath.Join(cwd, "logs")),

		WarehouseGraphQLEndpoint: getEnv("WAREHOUSE_GRAPHQL_ENDPOINT", "https://public-api.shiphero.com/graphql"),
		WarehouseRefreshEndpoint: getEnv("WAREHOUSE_REFRESH_ENDPOINT", "https://public-api.shiphero.com/auth/refresh"),
		WarehouseAccessToken:     getEnv("WAREHOUSE_ACCESS_TOKEN", ""),
		WarehouseRefreshToken:    getEnv("WAREHOUSE_REFRESH_TOKEN", ""),
		WarehouseID:              getEnv("WAREHOUSE_ID", ""),
		WarehouseRateLimitRPS:    getEnvInt("WAREHOUSE_RATE_LIMIT_RPS", 5),
		WarehouseTimeoutMs:       getEnvInt("WAREHOUSE_TIMEOUT_MS", 30000),
		WarehouseThrottleCapSec:  getEnvInt("WAREHOUSE_THROTTLE_CAP_SEC", 300),

		OpsDBBaseURL:      getEnv("OPSDB_BASE_URL", "https://api.airtable.com/v0"),
		OpsDBAPIKey:       getEnv("OPSDB_API_KEY", ""),
		OpsDBBaseID:       getEnv("OPSDB_BASE_ID", ""),
		OpsDBMetadataView: getEnv("OPSDB_METADATA_VIEW", "Data for PO Builder"),

		ShopGraphQLEndpoint:   getEnv("SHOP_GRAPHQL_ENDPOINT", ""),
		ShopAPIToken:          getEnv("SHOP_API_TOKEN", ""),
		ShopPollIntervalSec:   getEnvInt("SHOP_POLL_INTERVAL_SEC", 3),
		FulfillmentLocationID: getEnv("FULFILLMENT_LOCATION_ID", "gid://shopify/Location/71392264438"),

		SheetsCredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", "service-account.json"),
		SheetsClientID:        getEnv("SHEETS_CLIENT_ID", ""),
		SheetsClientSecret:    getEnv("SHEETS_CLIENT_SECRET", ""),
		SheetsRefreshToken:    getEnv("SHEETS_REFRESH_TOKEN", ""),
		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsWorksheet:       getEnv("SHEETS_WORKSHEET", "Replenishment"),

		ServerAddr: getEnv("SERVER_ADDR", ":5001"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

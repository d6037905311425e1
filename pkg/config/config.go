package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup and handed to constructors; nothing reads
// the environment after that.
type Config struct {
	Service     string
	Port        string
	DatabaseURL string

	EthRPCURL         string
	OwnerPrivateKey   string
	OwnerKeystorePath string
	OwnerPassphrase   string
	EscrowABIPath     string
	EscrowBinPath     string
	GasPriceWei       int64
	ReceiptTimeout    time.Duration
	ReceiptPoll       time.Duration

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
	RelayEvery   time.Duration
}

func Load(service string) (Config, error) {
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	cfg := Config{
		Service:           service,
		Port:              getenv("PORT", "8080"),
		DatabaseURL:       db,
		EthRPCURL:         getenv("ETH_RPC_URL", "http://127.0.0.1:8545"),
		OwnerPrivateKey:   getenv("OWNER_PRIVATE_KEY", ""),
		OwnerKeystorePath: getenv("OWNER_KEYSTORE_PATH", ""),
		OwnerPassphrase:   os.Getenv("OWNER_PASSPHRASE"),
		EscrowABIPath:     getenv("ESCROW_ABI_PATH", "contracts/OrderContract.abi"),
		EscrowBinPath:     getenv("ESCROW_BIN_PATH", "contracts/OrderContract.bin"),
		GasPriceWei:       getenvInt64("GAS_PRICE_WEI", 21000),
		ReceiptTimeout:    getenvMS("RECEIPT_TIMEOUT_MS", 120000),
		ReceiptPoll:       getenvMS("RECEIPT_POLL_MS", 100),
		KafkaBrokers:      getenv("KAFKA_BROKERS", ""),
		KafkaTopic:        getenv("KAFKA_TOPIC", "escrow.orders"),
		KafkaGroupID:      getenv("KAFKA_GROUP_ID", service),
		RelayEvery:        getenvMS("OUTBOX_RELAY_MS", 1000),
	}
	if cfg.GasPriceWei <= 0 {
		return Config{}, errors.New("GAS_PRICE_WEI must be positive")
	}
	return cfg, nil
}

// HasOwnerKey reports whether an operating account for the store owner is configured.
func (c Config) HasOwnerKey() bool {
	return c.OwnerPrivateKey != "" || c.OwnerKeystorePath != ""
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getenvInt64(k string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvMS(k string, def int64) time.Duration {
	return time.Duration(getenvInt64(k, def)) * time.Millisecond
}

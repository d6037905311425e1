package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazeru/escrow-fulfillment-go/internal/chain"
	"github.com/nazeru/escrow-fulfillment-go/internal/keys"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/lifecycle"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/store"
	"github.com/nazeru/escrow-fulfillment-go/pkg/config"
	"github.com/nazeru/escrow-fulfillment-go/pkg/db"
	"github.com/nazeru/escrow-fulfillment-go/pkg/kafka"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/metrics"
	"github.com/nazeru/escrow-fulfillment-go/pkg/outbox"
)

// Orders is everything a service that drives the order lifecycle needs.
type Orders struct {
	Engine  *lifecycle.Engine
	Store   *store.Store
	Workers []Worker

	pool     *pgxpool.Pool
	producer *kafka.Producer
	closeRPC func()
}

// NewOrders connects to Postgres and the ledger node, loads the escrow
// contract and the owner account, and starts nothing yet.
func NewOrders(ctx context.Context, cfg config.Config, log logging.Logger, m *metrics.ServerMetrics) (*Orders, error) {
	owner, err := OwnerCredential(cfg)
	if err != nil {
		return nil, err
	}
	escrow, err := chain.LoadEscrow(cfg.EscrowABIPath, cfg.EscrowBinPath)
	if err != nil {
		return nil, fmt.Errorf("load escrow contract: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	rpc, err := chain.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}

	st := store.New(pool, cfg.KafkaTopic)
	transactor := chain.NewTransactor(rpc, chain.Options{
		GasPrice:       big.NewInt(cfg.GasPriceWei),
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.ReceiptPoll,
		Log:            log,
		Observer:       m,
		Journal:        st,
	})
	o := &Orders{
		Engine: lifecycle.NewEngine(lifecycle.Deps{
			Store:    st,
			Unsealer: keys.Unsealer{},
			Chain:    transactor,
			Escrow:   escrow,
			Owner:    owner,
			Log:      log,
			Alerts:   m,
		}),
		Store:    st,
		pool:     pool,
		closeRPC: rpc.Close,
	}

	client := kafka.NewClient(cfg.KafkaBrokers)
	if client.Enabled() {
		o.producer = &kafka.Producer{Writer: client.NewWriter()}
		relay := &outbox.Relay{
			DB:        pool,
			Publisher: o.producer,
			Log:       log,
			Interval:  cfg.RelayEvery,
			OnSent:    m.OutboxRelayed.Inc,
		}
		o.Workers = append(o.Workers, relay.Run)
	} else {
		log.Log(logging.Fields{Step: "outbox_relay", Status: "disabled", Message: "KAFKA_BROKERS is empty; events stay in the outbox"})
	}
	return o, nil
}

func (o *Orders) Close() {
	if err := o.producer.Close(); err != nil {
		logging.Log(logging.Fields{Step: "kafka_close", Status: "error", Error: err.Error()})
	}
	o.closeRPC()
	o.pool.Close()
}

// OwnerCredential prefers a raw hex key over an encrypted keystore file.
func OwnerCredential(cfg config.Config) (keys.Credential, error) {
	if !cfg.HasOwnerKey() {
		return keys.Credential{}, errors.New("OWNER_PRIVATE_KEY or OWNER_KEYSTORE_PATH is required")
	}
	switch {
	case cfg.OwnerPrivateKey != "":
		cred, err := keys.FromHex(cfg.OwnerPrivateKey)
		if err != nil {
			return keys.Credential{}, fmt.Errorf("OWNER_PRIVATE_KEY: %w", err)
		}
		return cred, nil
	default:
		cred, err := keys.LoadKeystore(cfg.OwnerKeystorePath, cfg.OwnerPassphrase)
		if err != nil {
			return keys.Credential{}, fmt.Errorf("OWNER_KEYSTORE_PATH: %w", err)
		}
		return cred, nil
	}
}

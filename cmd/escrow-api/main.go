package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitgig-io/ragnar/internal/attestarchive"
	"github.com/gitgig-io/ragnar/internal/claimpolicy"
	claimpolicypg "github.com/gitgig-io/ragnar/internal/claimpolicy/postgres"
	"github.com/gitgig-io/ragnar/internal/escrow"
	escrowpg "github.com/gitgig-io/ragnar/internal/escrow/postgres"
	"github.com/gitgig-io/ragnar/internal/escrowapi"
	"github.com/gitgig-io/ragnar/internal/eth"
	"github.com/gitgig-io/ragnar/internal/events"
	"github.com/gitgig-io/ragnar/internal/feecascade"
	feecascadepg "github.com/gitgig-io/ragnar/internal/feecascade/postgres"
	"github.com/gitgig-io/ragnar/internal/fees"
	"github.com/gitgig-io/ragnar/internal/identity"
	identitypg "github.com/gitgig-io/ragnar/internal/identity/postgres"
	"github.com/gitgig-io/ragnar/internal/notary"
	"github.com/gitgig-io/ragnar/internal/queue"
	"github.com/gitgig-io/ragnar/internal/roles"
	"github.com/gitgig-io/ragnar/internal/token"
	"github.com/gitgig-io/ragnar/internal/token/erc20"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:8080", "HTTP listen address")

		postgresDSN = flag.String("postgres-dsn", "", "Postgres DSN (required)")

		chainID    = flag.Uint64("chain-id", 0, "EVM chain id (required)")
		escrowAddr = flag.String("escrow-address", "", "escrow custody address, signs payouts (required)")
		notaryAddr = flag.String("notary-address", "", "trusted notary address (required)")
		adminAddr  = flag.String("admin-address", "", "governance admin address (required)")

		financeAddrs = flag.String("finance-addresses", "", "comma-separated addresses granted the finance role")
		tokensSpec   = flag.String("tokens", "", "accepted tokens as symbol:address:decimals[:stable|points], comma-separated (required)")

		serviceFeePercent    = flag.Uint("service-fee-percent", 20, "service fee percent charged on deposits")
		maintainerFeePercent = flag.Uint("maintainer-fee-percent", 10, "default maintainer cut percent on close")

		reclaimAfter = flag.Duration("reclaim-after", escrow.DefaultReclaimAfter, "depositor reclaim window start")
		sweepAfter   = flag.Duration("sweep-after", escrow.DefaultSweepAfter, "finance sweep window start")

		claimCap = flag.String("claim-cap", "", "lifetime per-user claim cap in 18-decimal stable units; empty disables capping")

		rpcURL         = flag.String("rpc-url", "", "EVM rpc URL for token settlement (required)")
		payoutKeysHex  = flag.String("payout-keys-hex", "", "comma-separated payout private keys (hex)")
		payoutKeysFile = flag.String("payout-keys-file", "", "file holding comma-separated payout private keys")

		gasLimitMultiplier  = flag.Float64("gas-limit-multiplier", 1.2, "multiplier applied to gas estimates")
		minTipCapWei        = flag.Int64("min-tip-cap-wei", 1_000_000_000, "floor for the 1559 tip cap")
		receiptPollInterval = flag.Duration("receipt-poll-interval", 2*time.Second, "receipt polling interval")
		replaceAfter        = flag.Duration("replace-after", 30*time.Second, "replace a stuck tx after this long")
		maxReplacements     = flag.Int("max-replacements", 3, "maximum fee-bumped replacements per tx")

		queueDriver  = flag.String("queue-driver", queue.DriverKafka, "queue driver for event stream (kafka|stdio)")
		queueBrokers = flag.String("queue-brokers", "", "queue brokers (comma-separated); empty disables the event stream")

		archiveDriver = flag.String("archive-driver", "", "authorization archive driver (s3|memory); empty disables archival")
		archiveBucket = flag.String("archive-bucket", "", "S3 bucket for the authorization archive")
		archivePrefix = flag.String("archive-prefix", "", "optional key prefix for the authorization archive")

		authToken  = flag.String("auth-token", "", "bearer token for finance endpoints; empty leaves them open")
		authWrites = flag.Bool("auth-writes", false, "require the bearer token on deposit, reclaim, and deferred-payout routes")

		rateLimitPerSecond = flag.Float64("rate-limit-per-ip-per-second", 20, "per-IP refill rate for API rate limiting")
		rateLimitBurst     = flag.Int("rate-limit-burst", 40, "per-IP burst capacity for API rate limiting")
		rateLimitMaxIPs    = flag.Int("rate-limit-max-tracked-ips", 10000, "maximum tracked client IP entries in rate limiter")

		readHeaderTimeout = flag.Duration("read-header-timeout", 5*time.Second, "http.Server ReadHeaderTimeout")
		readTimeout       = flag.Duration("read-timeout", 10*time.Second, "http.Server ReadTimeout")
		writeTimeout      = flag.Duration("write-timeout", 30*time.Second, "http.Server WriteTimeout")
		idleTimeout       = flag.Duration("idle-timeout", 60*time.Second, "http.Server IdleTimeout")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *postgresDSN == "" || *chainID == 0 || *escrowAddr == "" || *notaryAddr == "" || *adminAddr == "" || *tokensSpec == "" || *rpcURL == "" {
		fmt.Fprintln(os.Stderr, "error: --postgres-dsn, --chain-id, --escrow-address, --notary-address, --admin-address, --tokens, and --rpc-url are required")
		os.Exit(2)
	}
	for _, a := range []string{*escrowAddr, *notaryAddr, *adminAddr} {
		if !common.IsHexAddress(a) {
			fmt.Fprintf(os.Stderr, "error: %q is not a valid hex address\n", a)
			os.Exit(2)
		}
	}
	if *serviceFeePercent > 100 || *maintainerFeePercent > 100 {
		fmt.Fprintln(os.Stderr, "error: fee percents must be in [0,100]")
		os.Exit(2)
	}
	if *readHeaderTimeout <= 0 || *readTimeout <= 0 || *writeTimeout <= 0 || *idleTimeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: timeouts must be > 0")
		os.Exit(2)
	}
	if strings.TrimSpace(*payoutKeysHex) != "" && strings.TrimSpace(*payoutKeysFile) != "" {
		fmt.Fprintln(os.Stderr, "error: use only one of --payout-keys-hex or --payout-keys-file")
		os.Exit(2)
	}

	tokenInfos, stable, points, err := parseTokensSpec(*tokensSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: --tokens: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, *postgresDSN)
	if err != nil {
		log.Error("init pgx pool", "err", err)
		os.Exit(2)
	}
	defer pool.Close()

	escrowStore, err := escrowpg.New(pool)
	if err != nil {
		log.Error("init escrow store", "err", err)
		os.Exit(2)
	}
	if err := escrowStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure escrow schema", "err", err)
		os.Exit(2)
	}

	identityStore, err := identitypg.New(pool)
	if err != nil {
		log.Error("init identity store", "err", err)
		os.Exit(2)
	}
	if err := identityStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure identity schema", "err", err)
		os.Exit(2)
	}

	cascadeStore, err := feecascadepg.New(pool)
	if err != nil {
		log.Error("init fee cascade store", "err", err)
		os.Exit(2)
	}
	if err := cascadeStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure fee cascade schema", "err", err)
		os.Exit(2)
	}

	keysHex := strings.TrimSpace(*payoutKeysHex)
	if strings.TrimSpace(*payoutKeysFile) != "" {
		raw, readErr := os.ReadFile(strings.TrimSpace(*payoutKeysFile))
		if readErr != nil {
			log.Error("read payout keys file", "err", readErr)
			os.Exit(2)
		}
		keysHex = strings.TrimSpace(string(raw))
	}
	keys, err := eth.ParsePayoutKeys(keysHex)
	if err != nil {
		log.Error("parse payout keys", "err", err)
		os.Exit(2)
	}
	signers := make([]eth.Signer, 0, len(keys))
	for _, k := range keys {
		signers = append(signers, eth.NewLocalSigner(k))
	}

	client, err := ethclient.DialContext(ctx, *rpcURL)
	if err != nil {
		log.Error("dial rpc", "err", err)
		os.Exit(2)
	}
	defer client.Close()

	submitter, err := eth.NewSubmitter(client, signers, eth.SubmitterConfig{
		ChainID:             new(big.Int).SetUint64(*chainID),
		GasLimitMultiplier:  *gasLimitMultiplier,
		MinTipCap:           big.NewInt(*minTipCapWei),
		ReceiptPollInterval: *receiptPollInterval,
		ReplaceAfter:        *replaceAfter,
		MaxReplacements:     *maxReplacements,

		ReplacementBumpPercent: 15,
		MinReplacementTipBump:  big.NewInt(1_000_000_000),
		MinReplacementFeeBump:  big.NewInt(1_000_000_000),
	})
	if err != nil {
		log.Error("init tx submitter", "err", err)
		os.Exit(2)
	}

	instance := common.HexToAddress(*escrowAddr)
	bank, err := erc20.NewBank(submitter, instance)
	if err != nil {
		log.Error("init erc20 bank", "err", err)
		os.Exit(2)
	}

	authority, err := roles.NewAuthority(common.HexToAddress(*adminAddr))
	if err != nil {
		log.Error("init roles authority", "err", err)
		os.Exit(2)
	}
	for _, a := range queue.SplitCommaList(*financeAddrs) {
		if !common.IsHexAddress(a) {
			fmt.Fprintf(os.Stderr, "error: --finance-addresses: %q is not a valid hex address\n", a)
			os.Exit(2)
		}
		if err := authority.Grant(common.HexToAddress(*adminAddr), roles.Finance, common.HexToAddress(a)); err != nil {
			log.Error("grant finance role", "addr", a, "err", err)
			os.Exit(2)
		}
	}

	feeResolver, err := fees.NewResolver(fees.Config{
		DefaultServiceFeePercent: uint8(*serviceFeePercent),
		MaintainerFeePercent:     uint8(*maintainerFeePercent),
	})
	if err != nil {
		log.Error("init fee resolver", "err", err)
		os.Exit(2)
	}

	tokenRegistry := token.NewRegistry()
	for _, info := range tokenInfos {
		if err := tokenRegistry.Add(info); err != nil {
			log.Error("register token", "symbol", info.Symbol, "err", err)
			os.Exit(2)
		}
	}

	domain := notary.Domain{ChainID: *chainID, Instance: instance}

	var eng *escrow.Engine
	notaryFn := func() common.Address {
		if eng == nil {
			return common.HexToAddress(*notaryAddr)
		}
		return eng.NotaryAddress()
	}

	registry, err := identity.NewRegistry(identity.Config{
		Store:  identityStore,
		Domain: domain,
		Notary: notaryFn,
	})
	if err != nil {
		log.Error("init identity registry", "err", err)
		os.Exit(2)
	}

	cascade, err := feecascade.New(feecascade.Config{
		Store:  cascadeStore,
		Domain: domain,
		Notary: notaryFn,
	})
	if err != nil {
		log.Error("init fee cascade", "err", err)
		os.Exit(2)
	}

	var validator claimpolicy.Validator
	if strings.TrimSpace(*claimCap) != "" {
		capAmount, ok := new(big.Int).SetString(strings.TrimSpace(*claimCap), 10)
		if !ok || capAmount.Sign() <= 0 {
			fmt.Fprintln(os.Stderr, "error: --claim-cap must be a positive decimal integer")
			os.Exit(2)
		}
		policyStore, policyErr := claimpolicypg.New(pool)
		if policyErr != nil {
			log.Error("init claim policy store", "err", policyErr)
			os.Exit(2)
		}
		if err := policyStore.EnsureSchema(ctx); err != nil {
			log.Error("ensure claim policy schema", "err", err)
			os.Exit(2)
		}
		validator, err = claimpolicy.NewCapped(claimpolicy.CappedConfig{
			Store:        policyStore,
			Domain:       domain,
			Notary:       notaryFn,
			Cap:          capAmount,
			StableTokens: stable,
			PointsTokens: points,
		})
		if err != nil {
			log.Error("init capped claim validator", "err", err)
			os.Exit(2)
		}
		log.Info("claim capping enabled", "cap", capAmount)
	}

	var sink escrow.EventSink
	if strings.TrimSpace(*queueBrokers) != "" {
		producer, producerErr := queue.NewProducer(queue.ProducerConfig{
			Driver:  *queueDriver,
			Brokers: queue.SplitCommaList(*queueBrokers),
		})
		if producerErr != nil {
			log.Error("init queue producer", "err", producerErr)
			os.Exit(2)
		}
		defer producer.Close()
		sink, err = events.NewPublisher(producer)
		if err != nil {
			log.Error("init event publisher", "err", err)
			os.Exit(2)
		}
		log.Info("event stream enabled", "driver", *queueDriver)
	}

	var archive escrow.Archive
	switch strings.TrimSpace(*archiveDriver) {
	case "":
	case attestarchive.DriverMemory:
		archive, err = attestarchive.New(attestarchive.Config{Driver: attestarchive.DriverMemory})
		if err != nil {
			log.Error("init memory archive", "err", err)
			os.Exit(2)
		}
	case attestarchive.DriverS3:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			log.Error("load aws config", "err", awsErr)
			os.Exit(2)
		}
		archive, err = attestarchive.New(attestarchive.Config{
			Driver:   attestarchive.DriverS3,
			Bucket:   *archiveBucket,
			Prefix:   *archivePrefix,
			S3Client: s3.NewFromConfig(awsCfg),
		})
		if err != nil {
			log.Error("init s3 archive", "err", err)
			os.Exit(2)
		}
		log.Info("authorization archive enabled", "bucket", *archiveBucket)
	default:
		fmt.Fprintf(os.Stderr, "error: unsupported --archive-driver %q\n", *archiveDriver)
		os.Exit(2)
	}

	eng, err = escrow.NewEngine(escrow.Config{
		Store:        escrowStore,
		Identity:     registry,
		Fees:         feeResolver,
		Cascade:      cascade,
		Tokens:       tokenRegistry,
		Transferor:   bank,
		Validator:    validator,
		Authority:    authority,
		Notary:       common.HexToAddress(*notaryAddr),
		Events:       sink,
		AuthArchive:  archive,
		ReclaimAfter: *reclaimAfter,
		SweepAfter:   *sweepAfter,
		Log:          log,
	})
	if err != nil {
		log.Error("init escrow engine", "err", err)
		os.Exit(2)
	}

	handler, err := escrowapi.NewHandler(escrowapi.Config{
		ChainID:                 *chainID,
		Instance:                instance,
		AuthToken:               *authToken,
		RequireAuthForWrites:    *authWrites,
		RateLimitPerIPPerSecond: *rateLimitPerSecond,
		RateLimitBurst:          *rateLimitBurst,
		RateLimitMaxTrackedIPs:  *rateLimitMaxIPs,
	}, eng, registry)
	if err != nil {
		log.Error("init escrow api handler", "err", err)
		os.Exit(2)
	}

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: *readHeaderTimeout,
		ReadTimeout:       *readTimeout,
		WriteTimeout:      *writeTimeout,
		IdleTimeout:       *idleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("escrow-api listening", "addr", *listenAddr, "chainID", *chainID, "escrow", instance.Hex())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown", "reason", ctx.Err())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// parseTokensSpec parses "symbol:address:decimals[:stable|points]" entries.
func parseTokensSpec(spec string) ([]token.Info, map[common.Address]uint8, map[common.Address]bool, error) {
	var infos []token.Info
	stable := make(map[common.Address]uint8)
	points := make(map[common.Address]bool)

	for _, entry := range queue.SplitCommaList(spec) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, nil, nil, fmt.Errorf("malformed entry %q", entry)
		}
		symbol := strings.TrimSpace(parts[0])
		if symbol == "" {
			return nil, nil, nil, fmt.Errorf("empty symbol in %q", entry)
		}
		if !common.IsHexAddress(strings.TrimSpace(parts[1])) {
			return nil, nil, nil, fmt.Errorf("bad address in %q", entry)
		}
		addr := common.HexToAddress(strings.TrimSpace(parts[1]))
		decimals, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 8)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bad decimals in %q: %w", entry, err)
		}
		if len(parts) == 4 {
			switch strings.TrimSpace(parts[3]) {
			case "stable":
				stable[addr] = uint8(decimals)
			case "points":
				points[addr] = true
			default:
				return nil, nil, nil, fmt.Errorf("unknown kind %q in %q", parts[3], entry)
			}
		}
		infos = append(infos, token.Info{
			Address:  addr,
			Symbol:   symbol,
			Decimals: uint8(decimals),
		})
	}
	if len(infos) == 0 {
		return nil, nil, nil, fmt.Errorf("no tokens configured")
	}
	return infos, stable, points, nil
}

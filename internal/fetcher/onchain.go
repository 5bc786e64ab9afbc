package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const vaultABIJSON = `[{"inputs":[{"internalType":"uint256","name":"assets","type":"uint256"}],"name":"previewDeposit","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var vaultABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic("failed to parse ERC-4626 ABI: " + err.Error())
	}
	vaultABI = parsed
}

// OnchainOptions parameterise the ERC-4626 vault fetcher.
type OnchainOptions struct {
	RPCURL       string
	VaultAddress string
	Decimals     int32
	Timeout      time.Duration
}

// Onchain quotes the share price of an ERC-4626 vault over Ethereum RPC.
type Onchain struct {
	opts      OnchainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewOnchain builds an on-chain fetcher.
func NewOnchain(opts OnchainOptions, logger zerolog.Logger) *Onchain {
	if opts.Decimals <= 0 {
		opts.Decimals = 18
	}
	return &Onchain{opts: opts, logger: logger.With().Str("component", "onchain_fetcher").Logger()}
}

// FetchQuote returns shares minted for one whole asset unit.
func (o *Onchain) FetchQuote(ctx context.Context) (decimal.Decimal, error) {
	if o.opts.RPCURL == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: ethereum rpc url not configured", ErrTransport)
	}
	if o.opts.VaultAddress == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: vault address not configured", ErrTransport)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: dial rpc: %v", ErrTransport, err)
	}

	addr := common.HexToAddress(o.opts.VaultAddress)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(o.opts.Decimals)), nil)

	payload, err := vaultABI.Pack("previewDeposit", unit)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: pack call: %v", ErrDecode, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: call contract: %v", ErrTransport, err)
	}

	shares, err := decodeShares(res)
	if err != nil {
		return decimal.Decimal{}, err
	}

	rate := decimal.NewFromBigInt(shares, -o.opts.Decimals)
	o.logger.Debug().Str("vault", addr.Hex()).Str("rate", rate.String()).Msg("quote fetched")
	return rate, nil
}

func decodeShares(res []byte) (*big.Int, error) {
	outputs, err := vaultABI.Unpack("previewDeposit", res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("%w: unexpected previewDeposit response", ErrDecode)
	}
	shares, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: previewDeposit output is %T", ErrDecode, outputs[0])
	}
	if shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrDecode, errors.New("previewDeposit returned zero"))
	}
	return shares, nil
}

func (o *Onchain) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ RateSource = (*Onchain)(nil)

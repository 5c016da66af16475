package evm

import (
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"curve-indexer/internal/domain"
)

// curveABI describes the events the curve contract emits. Amount fields are
// wei and base token units; the normalizer shifts both to 18 decimals.
const curveABI = `[
	{"type":"event","name":"TokenCreated","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"metadataRef","type":"string","indexed":false}]},
	{"type":"event","name":"TokenBuy","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"trader","type":"address","indexed":true},
		{"name":"ethIn","type":"uint256","indexed":false},
		{"name":"tokenOut","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenSell","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"trader","type":"address","indexed":true},
		{"name":"ethOut","type":"uint256","indexed":false},
		{"name":"tokenIn","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenLaunched","inputs":[
		{"name":"token","type":"address","indexed":true},
		{"name":"pool","type":"address","indexed":false}]}
]`

const evmDecimals = 18

// Normalizer decodes curve-contract logs into domain events. Decoding is
// driven by the first topic, matched against the parsed ABI.
type Normalizer struct {
	network string
	abi     abi.ABI
	logger  *log.Logger
}

// NewNormalizer parses the curve contract ABI once and reuses it per log.
func NewNormalizer(network string, logger *log.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := abi.JSON(strings.NewReader(curveABI))
	if err != nil {
		return nil, fmt.Errorf("parse curve abi: %w", err)
	}
	return &Normalizer{network: network, abi: parsed, logger: logger}, nil
}

// Normalize converts one log into a domain event. Unknown topics return
// false; malformed payloads for known topics are logged and skipped.
func (n *Normalizer) Normalize(lg types.Log, timestamp int64, ethPriceUSD decimal.Decimal) (domain.Event, bool) {
	if lg.Removed || len(lg.Topics) == 0 {
		return domain.Event{}, false
	}

	event, err := n.abi.EventByID(lg.Topics[0])
	if err != nil {
		return domain.Event{}, false
	}

	args, err := n.unpack(event, lg)
	if err != nil {
		n.logger.Printf("[evm] %s: malformed %s log, skipping: %v", lg.TxHash.Hex(), event.RawName, err)
		return domain.Event{}, false
	}

	ev := domain.Event{
		Network:     n.network,
		TxHash:      lg.TxHash.Hex(),
		Position:    lg.BlockNumber,
		Timestamp:   timestamp,
		EthPriceUSD: ethPriceUSD,
	}

	token, ok := args["token"].(common.Address)
	if !ok {
		n.logger.Printf("[evm] %s: %s log without token, skipping", lg.TxHash.Hex(), event.RawName)
		return domain.Event{}, false
	}
	ev.TokenAddress = strings.ToLower(token.Hex())

	switch event.RawName {
	case "TokenCreated":
		ev.Kind = domain.EventTokenCreated
		ev.MetadataRef, _ = args["metadataRef"].(string)
	case "TokenBuy":
		ev.Kind = domain.EventBuy
		ev.Trader = traderAddress(args)
		ev.EthAmount = weiToDecimal(args["ethIn"])
		ev.TokenAmount = weiToDecimal(args["tokenOut"])
	case "TokenSell":
		ev.Kind = domain.EventSell
		ev.Trader = traderAddress(args)
		ev.EthAmount = weiToDecimal(args["ethOut"])
		ev.TokenAmount = weiToDecimal(args["tokenIn"])
	case "TokenLaunched":
		ev.Kind = domain.EventLaunched
		if pool, ok := args["pool"].(common.Address); ok {
			ev.ExternalPoolRef = strings.ToLower(pool.Hex())
		}
	default:
		return domain.Event{}, false
	}
	return ev, true
}

// unpack merges indexed topic arguments and non-indexed data arguments into
// one map.
func (n *Normalizer) unpack(event *abi.Event, lg types.Log) (map[string]interface{}, error) {
	args := make(map[string]interface{})

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) != len(lg.Topics)-1 {
		return nil, fmt.Errorf("topic count mismatch: want %d, got %d", len(indexed), len(lg.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, lg.Data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	return args, nil
}

func traderAddress(args map[string]interface{}) string {
	if trader, ok := args["trader"].(common.Address); ok {
		return strings.ToLower(trader.Hex())
	}
	return ""
}

func weiToDecimal(v interface{}) decimal.Decimal {
	amount, ok := v.(*big.Int)
	if !ok || amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -evmDecimals)
}

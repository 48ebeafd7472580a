// internal/hedera/events.go
package hedera

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event families emitted by the escrow contract.
const (
	EventMilestoneFunded          = "MilestoneFunded"
	EventMilestoneForceClosed     = "MilestoneForceClosed"
	EventMilestonePayout          = "MilestonePayout"
	EventMilestoneStateChanged    = "MilestoneStateChanged"
	EventSubMilestoneStateChanged = "SubMilestoneStateChanged"
	EventRoyaltyPaid              = "RoyaltyPaid"
	EventMilestoneRoyaltyFunded   = "MilestoneRoyaltyFunded"
	EventSubMilestoneAdded        = "SubMilestoneAdded"
	EventFreeBalanceReleased      = "FreeBalanceReleased"
)

// Contract functions referenced by the reconciler's selection table.
const (
	FuncFundMilestone          = "fundMilestone"
	FuncFundProject            = "fundProject"
	FuncFundUsdcToMilestone    = "fundUsdcToMilestone"
	FuncFundUsdcToProject      = "fundUsdcToProject"
	FuncForceCloseMilestone    = "forceCloseMilestone"
	FuncPayoutProject          = "payoutProject"
	FuncPayoutMilestone        = "payoutMilestone"
	FuncChangeMilestoneState   = "changeMilestoneState"
	FuncChangeSubMilestone     = "changeSubMilestoneState"
	FuncPayoutMilestoneRoyalty = "payoutMilestoneRoyalty"
	FuncAddSubMilestones       = "addSubMilestones"
	FuncReleaseFreeBalance     = "releaseFreeBalance"
)

const escrowEventsJSON = `[
	{"type":"event","name":"MilestoneFunded","inputs":[
		{"name":"milestoneId","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"MilestoneForceClosed","inputs":[
		{"name":"milestoneId","type":"string","indexed":false}]},
	{"type":"event","name":"MilestonePayout","inputs":[
		{"name":"milestoneId","type":"string","indexed":false}]},
	{"type":"event","name":"MilestoneStateChanged","inputs":[
		{"name":"milestoneId","type":"string","indexed":false},
		{"name":"state","type":"uint8","indexed":false},
		{"name":"endDate","type":"uint32","indexed":false}]},
	{"type":"event","name":"SubMilestoneStateChanged","inputs":[
		{"name":"subMilestoneId","type":"string","indexed":false},
		{"name":"state","type":"uint8","indexed":false},
		{"name":"endDate","type":"uint32","indexed":false}]},
	{"type":"event","name":"RoyaltyPaid","inputs":[
		{"name":"milestoneId","type":"string","indexed":false}]},
	{"type":"event","name":"MilestoneRoyaltyFunded","inputs":[
		{"name":"milestoneId","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":true}]},
	{"type":"event","name":"SubMilestoneAdded","inputs":[
		{"name":"subMilestoneId","type":"string","indexed":false},
		{"name":"fundAllocated","type":"uint256","indexed":false},
		{"name":"noOfRevisions","type":"uint8","indexed":false}]},
	{"type":"event","name":"FreeBalanceReleased","inputs":[
		{"name":"projectId","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

var escrowABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(escrowEventsJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid escrow event catalogue: %v", err))
	}
	escrowABI = parsed
}

// DecodedEvent holds one decoded contract log.
type DecodedEvent struct {
	Name   string
	Values map[string]interface{}
}

func (e *DecodedEvent) String(key string) string {
	if v, ok := e.Values[key].(string); ok {
		return v
	}
	return ""
}

func (e *DecodedEvent) Uint8(key string) uint8 {
	if v, ok := e.Values[key].(uint8); ok {
		return v
	}
	return 0
}

func (e *DecodedEvent) Uint32(key string) uint32 {
	if v, ok := e.Values[key].(uint32); ok {
		return v
	}
	return 0
}

// Amount returns a uint256 value as a decimal string, "0" when absent.
func (e *DecodedEvent) Amount(key string) string {
	if v, ok := e.Values[key].(*big.Int); ok {
		return v.String()
	}
	return "0"
}

// DecodeLog decodes a mirror node log entry against the named catalogue
// event. The log's first topic must match the event signature.
func DecodeLog(eventName string, log MirrorLog) (*DecodedEvent, error) {
	event, ok := escrowABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", eventName)
	}

	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	if common.HexToHash(log.Topics[0]) != event.ID {
		return nil, fmt.Errorf("log signature does not match event %s", eventName)
	}

	data, err := hex.DecodeString(strings.TrimPrefix(log.Data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid log data: %w", err)
	}

	values := make(map[string]interface{})
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s data: %w", eventName, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		topics := make([]common.Hash, 0, len(log.Topics)-1)
		for _, t := range log.Topics[1:] {
			topics = append(topics, common.HexToHash(t))
		}
		if err := abi.ParseTopicsIntoMap(values, indexed, topics); err != nil {
			return nil, fmt.Errorf("failed to parse %s topics: %w", eventName, err)
		}
	}

	return &DecodedEvent{Name: eventName, Values: values}, nil
}

// logPredicate selects which log indexes of a transaction belong to a
// (event family, submitted function) pair. The positions are fixed by the
// escrow contract's call graph.
type logPredicate func(i, total int) bool

var eventSelection = map[string]map[string]logPredicate{
	EventMilestoneFunded: {
		FuncFundMilestone:       func(i, total int) bool { return i == 0 },
		FuncFundProject:         func(i, total int) bool { return i%2 == 0 },
		FuncFundUsdcToMilestone: func(i, total int) bool { return i == 1 },
		FuncFundUsdcToProject:   func(i, total int) bool { return i < total-3 && i%2 == 0 },
	},
	EventMilestoneForceClosed: {
		FuncForceCloseMilestone: func(i, total int) bool { return i == 0 },
	},
	EventMilestonePayout: {
		FuncPayoutProject:   func(i, total int) bool { return i != total-1 },
		FuncPayoutMilestone: func(i, total int) bool { return i == 0 },
	},
	EventMilestoneStateChanged: {
		FuncChangeMilestoneState: func(i, total int) bool { return i == 0 },
	},
	EventSubMilestoneStateChanged: {
		FuncChangeSubMilestone: func(i, total int) bool { return i == 0 },
	},
	EventRoyaltyPaid: {
		FuncPayoutProject:          func(i, total int) bool { return i%2 == 1 && i != total-1 },
		FuncPayoutMilestoneRoyalty: func(i, total int) bool { return i == 0 },
	},
	EventSubMilestoneAdded: {
		FuncAddSubMilestones: func(i, total int) bool { return i >= 0 },
	},
	EventFreeBalanceReleased: {
		FuncReleaseFreeBalance: func(i, total int) bool { return i == 0 },
	},
}

// SelectLogs returns the logs of a transaction that carry the given event
// for the given submitted function, in order.
func SelectLogs(event, function string, logs []MirrorLog) []MirrorLog {
	byFunction, ok := eventSelection[event]
	if !ok {
		return nil
	}
	predicate, ok := byFunction[function]
	if !ok {
		return nil
	}

	var selected []MirrorLog
	for i, log := range logs {
		if predicate(i, len(logs)) {
			selected = append(selected, log)
		}
	}
	return selected
}

// KnownSelection reports whether the (event, function) pair exists in the
// selection table.
func KnownSelection(event, function string) bool {
	byFunction, ok := eventSelection[event]
	if !ok {
		return false
	}
	_, ok = byFunction[function]
	return ok
}

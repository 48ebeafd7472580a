// internal/hedera/events_test.go
package hedera

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeLog(t *testing.T, eventName string, values ...interface{}) MirrorLog {
	t.Helper()
	event, ok := escrowABI.Events[eventName]
	require.True(t, ok, "unknown event %s", eventName)

	data, err := event.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)

	return MirrorLog{
		Topics: []string{event.ID.Hex()},
		Data:   "0x" + hex.EncodeToString(data),
	}
}

func TestDecodeLogMilestoneFunded(t *testing.T) {
	log := encodeLog(t, EventMilestoneFunded, "ms-1", big.NewInt(100000000))

	decoded, err := DecodeLog(EventMilestoneFunded, log)
	require.NoError(t, err)
	assert.Equal(t, EventMilestoneFunded, decoded.Name)
	assert.Equal(t, "ms-1", decoded.String("milestoneId"))
	assert.Equal(t, "100000000", decoded.Amount("amount"))
}

func TestDecodeLogStateChanged(t *testing.T) {
	log := encodeLog(t, EventMilestoneStateChanged, "ms-2", uint8(3), uint32(1700000000))

	decoded, err := DecodeLog(EventMilestoneStateChanged, log)
	require.NoError(t, err)
	assert.Equal(t, "ms-2", decoded.String("milestoneId"))
	assert.Equal(t, uint8(3), decoded.Uint8("state"))
	assert.Equal(t, uint32(1700000000), decoded.Uint32("endDate"))
}

func TestDecodeLogSignatureMismatch(t *testing.T) {
	log := encodeLog(t, EventMilestonePayout, "ms-3")

	_, err := DecodeLog(EventMilestoneForceClosed, log)
	assert.Error(t, err)
}

func TestDecodeLogRejectsBadInput(t *testing.T) {
	_, err := DecodeLog("NoSuchEvent", MirrorLog{Topics: []string{"0x00"}})
	assert.Error(t, err)

	_, err = DecodeLog(EventMilestonePayout, MirrorLog{})
	assert.Error(t, err)
}

func TestDecodedEventZeroValues(t *testing.T) {
	decoded := &DecodedEvent{Values: map[string]interface{}{}}
	assert.Equal(t, "", decoded.String("missing"))
	assert.Equal(t, uint8(0), decoded.Uint8("missing"))
	assert.Equal(t, "0", decoded.Amount("missing"))
}

func TestSelectLogsSingle(t *testing.T) {
	logs := []MirrorLog{{Index: 0}, {Index: 1}, {Index: 2}}

	selected := SelectLogs(EventMilestoneFunded, FuncFundMilestone, logs)
	require.Len(t, selected, 1)
	assert.Equal(t, 0, selected[0].Index)

	selected = SelectLogs(EventMilestoneFunded, FuncFundUsdcToMilestone, logs)
	require.Len(t, selected, 1)
	assert.Equal(t, 1, selected[0].Index)
}

func TestSelectLogsAlternating(t *testing.T) {
	logs := make([]MirrorLog, 6)
	for i := range logs {
		logs[i].Index = i
	}

	// fundProject emits a funded log for every milestone, interleaved with
	// transfer logs.
	selected := SelectLogs(EventMilestoneFunded, FuncFundProject, logs)
	require.Len(t, selected, 3)
	assert.Equal(t, 0, selected[0].Index)
	assert.Equal(t, 2, selected[1].Index)
	assert.Equal(t, 4, selected[2].Index)

	// payoutProject pairs a payout log with a royalty log, the final log is
	// the ownership sweep.
	selected = SelectLogs(EventRoyaltyPaid, FuncPayoutProject, logs)
	require.Len(t, selected, 2)
	assert.Equal(t, 1, selected[0].Index)
	assert.Equal(t, 3, selected[1].Index)

	selected = SelectLogs(EventMilestonePayout, FuncPayoutProject, logs)
	require.Len(t, selected, 5)
}

func TestSelectLogsUsdcProjectTail(t *testing.T) {
	// The USDC path appends three token transfer logs after the per-milestone
	// pairs; those must never be selected.
	logs := make([]MirrorLog, 7)
	for i := range logs {
		logs[i].Index = i
	}

	selected := SelectLogs(EventMilestoneFunded, FuncFundUsdcToProject, logs)
	require.Len(t, selected, 2)
	assert.Equal(t, 0, selected[0].Index)
	assert.Equal(t, 2, selected[1].Index)
}

func TestSelectLogsUnknownPair(t *testing.T) {
	logs := []MirrorLog{{Index: 0}}
	assert.Nil(t, SelectLogs("NoSuchEvent", FuncFundMilestone, logs))
	assert.Nil(t, SelectLogs(EventMilestoneFunded, "noSuchFunction", logs))
}

func TestKnownSelection(t *testing.T) {
	assert.True(t, KnownSelection(EventMilestoneFunded, FuncFundProject))
	assert.True(t, KnownSelection(EventFreeBalanceReleased, FuncReleaseFreeBalance))
	assert.False(t, KnownSelection(EventMilestoneFunded, FuncReleaseFreeBalance))
	assert.False(t, KnownSelection("NoSuchEvent", FuncFundMilestone))
}

package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeCloseAt(t *testing.T) {
	at := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	tr := &Trade{EntryPrice: 1523.4, Quantity: 3, Status: TradeOpen}

	tr.CloseAt(1569.1, ExitTargetHit, at)

	assert.False(t, tr.IsOpen())
	require.NotNil(t, tr.PnL)
	assert.Equal(t, 137.1, *tr.PnL)
	assert.Equal(t, 3.0, *tr.PnLPercent)
	assert.Equal(t, 1569.1, *tr.ExitPrice)
	assert.Equal(t, at, *tr.ExitTime)
	assert.Equal(t, ExitTargetHit, tr.ExitReason)
}

func TestTradeClone(t *testing.T) {
	tr := &Trade{TradeID: "t1", EntryPrice: 100, Quantity: 1, Status: TradeOpen}
	tr.CloseAt(90, ExitStopLoss, time.Now())

	c := tr.Clone()
	*c.PnL = 999
	*c.ExitPrice = 1
	assert.Equal(t, -10.0, *tr.PnL)
	assert.Equal(t, 90.0, *tr.ExitPrice)
}

func TestRuleChecksFailed(t *testing.T) {
	r := RuleChecks{SectorAllowed: true, RiskWithinLimit: true, CapitalWithinLimit: false, TradeCountOK: true, RiskRewardOK: false}
	assert.Equal(t, []string{"capital_within_limit", "risk_reward_ok"}, r.Failed())
	assert.False(t, r.AllPass())
}

func TestUnsetFieldsEncodeAsNull(t *testing.T) {
	open := &Trade{TradeID: "t1", EntryPrice: 100, Quantity: 1, Status: TradeOpen}
	data, err := json.Marshal(open)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{"exit_price", "exit_time", "exit_reason", "pnl", "pnl_percent"} {
		v, ok := raw[field]
		assert.True(t, ok, field)
		assert.Nil(t, v, field)
	}

	var back Trade
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ExitReason(""), back.ExitReason)

	open.CloseAt(110, ExitTargetHit, time.Now())
	data, err = json.Marshal(open)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exit_reason":"TARGET_HIT"`)

	sig := LoggedSignal{ID: "abc12345"}
	data, err = json.Marshal(sig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_action":null`)

	sig.UserAction = ActionApproved
	data, err = json.Marshal(sig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_action":"APPROVED"`)
}

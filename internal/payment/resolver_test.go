package payment

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/surfbooking/internal/model"
)

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func bankBalanceAgent() *model.Agent {
	return &model.Agent{
		Code:           "AG1",
		Channels:       []model.Channel{model.ChannelBank, model.ChannelBalance},
		BalanceCeiling: decimal.NewNullDecimal(amount(200000)),
	}
}

func TestAvailableMethods(t *testing.T) {
	r := NewResolver("IDR")

	tests := []struct {
		name     string
		currency string
		agent    *model.Agent
		want     []model.Channel
		wantErr  error
	}{
		{name: "base currency without agent", currency: "IDR", want: []model.Channel{model.ChannelLocalGateway}},
		{name: "base currency is case-insensitive", currency: "idr", want: []model.Channel{model.ChannelLocalGateway}},
		{name: "foreign currency without agent", currency: "USD", want: []model.Channel{model.ChannelInternationalGateway}},
		{name: "agent channels", currency: "IDR", agent: bankBalanceAgent(), want: []model.Channel{model.ChannelBank, model.ChannelBalance}},
		{name: "agent with foreign currency", currency: "USD", agent: bankBalanceAgent(), want: []model.Channel{}, wantErr: model.ErrAgentCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.AvailableMethods(tt.currency, tt.agent)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSubmission(t *testing.T) {
	r := NewResolver("IDR")

	tests := []struct {
		name      string
		intent    Intent
		wantRules []string
	}{
		{
			name:   "gateway payment without agent",
			intent: Intent{Currency: "IDR", Method: model.ChannelLocalGateway, NetPayable: amount(500)},
		},
		{
			name:      "no method chosen",
			intent:    Intent{Currency: "IDR", NetPayable: amount(500)},
			wantRules: []string{RuleMethodRequired},
		},
		{
			name:      "gateway of the wrong currency",
			intent:    Intent{Currency: "USD", Method: model.ChannelLocalGateway, NetPayable: amount(500)},
			wantRules: []string{RuleMethodNotAllowed},
		},
		{
			name: "exact split",
			intent: Intent{Currency: "IDR", Agent: bankBalanceAgent(), NetPayable: amount(550000), Split: []model.SplitPayment{
				{Channel: model.ChannelBank, Amount: amount(350000)},
				{Channel: model.ChannelBalance, Amount: amount(200000)},
			}},
		},
		{
			name: "balance over ceiling although sum matches",
			intent: Intent{Currency: "IDR", Agent: bankBalanceAgent(), NetPayable: amount(550000), Split: []model.SplitPayment{
				{Channel: model.ChannelBank, Amount: amount(300000)},
				{Channel: model.ChannelBalance, Amount: amount(250000)},
			}},
			wantRules: []string{RuleBalanceExceeded},
		},
		{
			name: "sum off by one and balance exceeded together",
			intent: Intent{Currency: "IDR", Agent: bankBalanceAgent(), NetPayable: amount(550000), Split: []model.SplitPayment{
				{Channel: model.ChannelBank, Amount: amount(299999)},
				{Channel: model.ChannelBalance, Amount: amount(250000)},
			}},
			wantRules: []string{RuleAmountMismatch, RuleBalanceExceeded},
		},
		{
			name:      "empty split",
			intent:    Intent{Currency: "IDR", Agent: bankBalanceAgent(), NetPayable: amount(550000)},
			wantRules: []string{RuleSplitEmpty},
		},
		{
			name: "channel the agent does not allow",
			intent: Intent{Currency: "IDR", Agent: bankBalanceAgent(), NetPayable: amount(100), Split: []model.SplitPayment{
				{Channel: model.ChannelCredit, Amount: amount(100)},
			}},
			wantRules: []string{RuleChannelNotAllowed},
		},
		{
			name: "agent with foreign currency",
			intent: Intent{Currency: "USD", Agent: bankBalanceAgent(), NetPayable: amount(100), Split: []model.SplitPayment{
				{Channel: model.ChannelBank, Amount: amount(100)},
			}},
			wantRules: []string{RuleAgentCurrency},
		},
		{
			name: "balance with no ceiling configured",
			intent: Intent{Currency: "IDR", Agent: &model.Agent{Code: "AG2", Channels: []model.Channel{model.ChannelBalance}}, NetPayable: amount(100), Split: []model.SplitPayment{
				{Channel: model.ChannelBalance, Amount: amount(100)},
			}},
			wantRules: []string{RuleBalanceExceeded},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := r.ValidateSubmission(tt.intent)
			rules := make([]string, 0, len(errs))
			for _, e := range errs {
				rules = append(rules, e.Rule)
			}
			if len(tt.wantRules) == 0 {
				assert.Empty(t, rules)
				assert.NoError(t, errs.Err())
				return
			}
			assert.Equal(t, tt.wantRules, rules)
			assert.True(t, errors.Is(errs.Err(), model.ErrValidation))
		})
	}
}

func TestPaidAmounts(t *testing.T) {
	gateway := Intent{Currency: "IDR", Method: model.ChannelLocalGateway, NetPayable: amount(700)}
	assert.Equal(t, []model.SplitPayment{{Channel: model.ChannelLocalGateway, Amount: amount(700)}}, PaidAmounts(gateway))
	assert.Equal(t, model.ChannelLocalGateway, PrimaryChannel(gateway))

	split := []model.SplitPayment{{Channel: model.ChannelBank, Amount: amount(700)}}
	agent := Intent{Currency: "IDR", Agent: bankBalanceAgent(), Split: split, NetPayable: amount(700)}
	assert.Equal(t, split, PaidAmounts(agent))
	assert.Equal(t, model.ChannelBank, PrimaryChannel(agent))
}

package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
)

func TestRuleBasedParseEndToEnd(t *testing.T) {
	ts := time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)
	body := "Rs.450.00 debited from A/c XX1234 at Swiggy on 01-01-24"

	tx := NewRuleBased(nil).Parse(body, "HDFCBK", ts)
	require.NotNil(t, tx)

	assert.True(t, decimal.RequireFromString("450.00").Equal(tx.Amount))
	assert.Equal(t, domain.DirectionDebit, tx.Direction)
	assert.Equal(t, "Swiggy", tx.Merchant)
	assert.Equal(t, domain.CategoryFoodDining, tx.Category)
	assert.Equal(t, domain.TypeOneTime, tx.Type)
	assert.Equal(t, 0.7, tx.Confidence)
	assert.Equal(t, domain.TransactionID("HDFCBK", body, ts), tx.ID)
	assert.Equal(t, string(KindRuleBased), tx.Extractor)
	assert.Equal(t, body, tx.SourceText)
}

func TestRuleBasedParse(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRuleBased(nil)

	tests := []struct {
		name      string
		sender    string
		body      string
		wantNil   bool
		amount    string
		direction domain.Direction
		merchant  string
		txType    domain.TransactionType
	}{
		{
			name:    "unknown sender",
			sender:  "VK-RANDOM",
			body:    "Rs.450.00 debited from A/c XX1234 at Swiggy",
			wantNil: true,
		},
		{
			name:    "otp",
			sender:  "HDFCBK",
			body:    "Your OTP for txn of Rs.450.00 is 123456",
			wantNil: true,
		},
		{
			name:    "spam link",
			sender:  "HDFCBK",
			body:    "Rs.450.00 debited at Swiggy. See www.example.com",
			wantNil: true,
		},
		{
			name:    "mandate notice",
			sender:  "HDFCBK",
			body:    "E-Mandate! Rs.199.00 will be deducted on 05/02/24, 00:00:00 For Netflix mandate UMN abcd1234@hdfc",
			wantNil: true,
		},
		{
			name:      "credit",
			sender:    "AX-ICICIB",
			body:      "Rs.1,234.50 credited to your A/c XX9876 from Rahul Sharma on 02-03-24",
			amount:    "1234.50",
			direction: domain.DirectionCredit,
			merchant:  "Rahul Sharma",
			txType:    domain.TypeOneTime,
		},
		{
			name:      "subscription keyword overrides type",
			sender:    "HDFCBK",
			body:      "Rs.649.00 debited from A/c XX1234 at Netflix on 05-02-24 for your subscription",
			amount:    "649",
			direction: domain.DirectionDebit,
			merchant:  "Netflix",
			txType:    domain.TypeSubscription,
		},
		{
			name:      "executed e-mandate debit",
			sender:    "HDFCBK",
			body:      "Rs.649.00 debited from A/c XX1234 towards Netflix e-mandate UMN abcd1234@hdfc on 05-02-24",
			amount:    "649",
			direction: domain.DirectionDebit,
			merchant:  "Netflix",
			txType:    domain.TypeSubscription,
		},
		{
			name:      "no merchant",
			sender:    "HDFCBK",
			body:      "Rs.500.00 debited from A/c XX1234",
			amount:    "500",
			direction: domain.DirectionDebit,
			merchant:  domain.UnknownMerchant,
			txType:    domain.TypeOneTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := r.Parse(tt.body, tt.sender, ts)
			if tt.wantNil {
				assert.Nil(t, tx)
				return
			}
			require.NotNil(t, tx)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(tx.Amount), "amount %s", tx.Amount)
			assert.Equal(t, tt.direction, tx.Direction)
			assert.Equal(t, tt.merchant, tx.Merchant)
			assert.Equal(t, tt.txType, tx.Type)
		})
	}
}

func TestRuleBasedContract(t *testing.T) {
	r := NewRuleBased(nil)
	assert.Equal(t, KindRuleBased, r.Kind())
	assert.True(t, r.Ready())
	assert.NoError(t, r.Initialize(context.Background()))

	tx, err := r.Accept(context.Background(), domain.IncomingMessage{Sender: "HDFCBK", Body: "hello"})
	assert.NoError(t, err)
	assert.Nil(t, tx)
}

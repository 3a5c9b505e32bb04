package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransaction_Validate(t *testing.T) {
	valid := func() Transaction {
		return Transaction{
			ID:         uuid.New(),
			UserID:     "user-1",
			Class:      AssetClassEquity,
			Symbol:     "AAPL",
			Name:       "Apple Inc.",
			Quantity:   decimal.NewFromInt(2),
			Price:      decimal.NewFromInt(10),
			Action:     ActionBuy,
			OccurredAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			RecordedAt: time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Valid buy should pass",
			mutate:  func(tx *Transaction) {},
			wantErr: false,
		},
		{
			name:    "Zero price sell should pass",
			mutate:  func(tx *Transaction) { tx.Action = ActionSell; tx.Price = decimal.Zero },
			wantErr: false,
		},
		{
			name:    "Unknown asset class should fail",
			mutate:  func(tx *Transaction) { tx.Class = AssetClass("BOND") },
			wantErr: true,
			errMsg:  "unknown asset class",
		},
		{
			name:    "Empty symbol should fail",
			mutate:  func(tx *Transaction) { tx.Symbol = "" },
			wantErr: true,
			errMsg:  "symbol cannot be empty",
		},
		{
			name:    "Zero quantity should fail",
			mutate:  func(tx *Transaction) { tx.Quantity = decimal.Zero },
			wantErr: true,
			errMsg:  "quantity must be positive",
		},
		{
			name:    "Negative price should fail",
			mutate:  func(tx *Transaction) { tx.Price = decimal.NewFromInt(-1) },
			wantErr: true,
			errMsg:  "price cannot be negative",
		},
		{
			name:    "Unknown action should fail",
			mutate:  func(tx *Transaction) { tx.Action = Action("HOLD") },
			wantErr: true,
			errMsg:  "action must be BUY or SELL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid()
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransaction_Notional(t *testing.T) {
	tx := Transaction{Quantity: decimal.NewFromInt(3), Price: decimal.RequireFromString("20.5")}
	assert.True(t, decimal.RequireFromString("61.5").Equal(tx.Notional()))
}

func TestSortTransactions(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	recorded := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	oldest := &Transaction{Symbol: "A", OccurredAt: day1, RecordedAt: recorded}
	sameDayEarlier := &Transaction{Symbol: "B", OccurredAt: day2, RecordedAt: recorded}
	sameDayLater := &Transaction{Symbol: "C", OccurredAt: day2, RecordedAt: recorded.Add(time.Minute)}

	txs := []*Transaction{oldest, sameDayEarlier, sameDayLater}
	SortTransactions(txs)

	assert.Equal(t, []*Transaction{sameDayLater, sameDayEarlier, oldest}, txs)
}

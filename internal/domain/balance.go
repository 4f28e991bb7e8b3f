package domain

import "time"

// Balance is the read-through Flow account balance record.
type Balance struct {
	Address          string    `json:"address"`
	BaseUnits        uint64    `json:"balance_base_units"`
	Balance          float64   `json:"balance"`
	BalanceFormatted string    `json:"balance_formatted"`
	Network          string    `json:"network"`
	Timestamp        time.Time `json:"timestamp"`
}

package domain

import "time"

// Fill is a confirmed execution report for one leg of an order.
type Fill struct {
	OpportunityID string
	Ticker        string
	Side          Side
	Action        Action
	Count         int
	PriceCent     int
	FeeCent       int
	FilledAt      time.Time
}

// Position is the net holding in a single ticker's YES side, tracked
// from confirmed fills only. NetContracts is signed: positive is long
// YES, negative is short YES (i.e. long NO).
type Position struct {
	Ticker        string
	NetContracts  int
	AvgEntryCent  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	UpdatedAt     time.Time
}

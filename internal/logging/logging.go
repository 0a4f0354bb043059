// Package logging builds the structured zap logger used across every
// component. Fields are built by shared helper functions so log lines stay
// greppable by opportunity id / ticker / relationship id regardless of
// which package emitted them.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger, or a human-readable
// console logger in dev mode.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Field helpers keep tag names consistent across packages.
func Opportunity(id string) zap.Field     { return zap.String("opportunity_id", id) }
func Relationship(id string) zap.Field    { return zap.String("relationship_id", id) }
func Ticker(t string) zap.Field           { return zap.String("ticker", t) }
func Signal(s string) zap.Field           { return zap.String("signal", s) }
func EdgeCents(e int) zap.Field           { return zap.Int("edge_cents", e) }
func NetMagnitude(m int) zap.Field        { return zap.Int("net_magnitude_cents", m) }
func Score(s float64) zap.Field           { return zap.Float64("score", s) }
func Count(n int) zap.Field               { return zap.Int("count", n) }
func Reason(r string) zap.Field           { return zap.String("reason", r) }

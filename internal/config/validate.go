package config

import "fmt"

// Validate checks the runtime invariants SPEC_FULL.md §6 depends on
// before the orchestrator wires anything up.
func (c Config) Validate() error {
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0, got %d", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxDailyLossCents < 0 {
		return fmt.Errorf("risk.max_daily_loss_cents must be >= 0, got %d", c.Risk.MaxDailyLossCents)
	}
	if c.Risk.AccountBalanceCents <= 0 {
		return fmt.Errorf("risk.account_balance_cents must be > 0, got %d", c.Risk.AccountBalanceCents)
	}
	if c.Risk.MaxContractsPerMarket <= 0 {
		return fmt.Errorf("risk.max_contracts_per_market must be > 0, got %d", c.Risk.MaxContractsPerMarket)
	}
	if c.Risk.MaxContractsPerTrade <= 0 {
		return fmt.Errorf("risk.max_contracts_per_trade must be > 0, got %d", c.Risk.MaxContractsPerTrade)
	}
	if c.Risk.MaxRiskPerTradePct <= 0 || c.Risk.MaxRiskPerTradePct > 1 {
		return fmt.Errorf("risk.max_risk_per_trade_pct must be within (0,1], got %f", c.Risk.MaxRiskPerTradePct)
	}
	if c.Risk.RiskSyncInterval <= 0 {
		return fmt.Errorf("risk.risk_sync_interval must be > 0, got %s", c.Risk.RiskSyncInterval)
	}

	if c.Detect.FeeSafetyMultiplier < 1 {
		return fmt.Errorf("detect.fee_safety_multiplier must be >= 1, got %f", c.Detect.FeeSafetyMultiplier)
	}
	if c.Detect.OpportunityTTL <= 0 {
		return fmt.Errorf("detect.opportunity_ttl must be > 0, got %s", c.Detect.OpportunityTTL)
	}
	if c.Detect.FullScanInterval <= 0 {
		return fmt.Errorf("detect.full_scan_interval must be > 0, got %s", c.Detect.FullScanInterval)
	}
	if c.Catalog.KappaFloor < 0 || c.Catalog.KappaFloor > 1 {
		return fmt.Errorf("catalog.kappa_floor must be within [0,1], got %f", c.Catalog.KappaFloor)
	}
	if c.Catalog.ConfidenceFloor < 0 || c.Catalog.ConfidenceFloor > 1 {
		return fmt.Errorf("catalog.confidence_floor must be within [0,1], got %f", c.Catalog.ConfidenceFloor)
	}

	if c.Exec.Workers <= 0 {
		return fmt.Errorf("exec.workers must be > 0, got %d", c.Exec.Workers)
	}
	if c.Exec.QueueCapacity <= 0 {
		return fmt.Errorf("exec.queue_capacity must be > 0, got %d", c.Exec.QueueCapacity)
	}
	if c.Exec.OrderDeadline <= 0 {
		return fmt.Errorf("exec.order_deadline must be > 0, got %s", c.Exec.OrderDeadline)
	}

	if !c.DryRun {
		if c.Exchange.APIKeyID == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange.api_key_id and exchange.api_secret are required when dry_run is false")
		}
	}

	return nil
}

package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMaintenanceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(mc *MaintenanceConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(mc *MaintenanceConfig) {}},
		{name: "daily policy", modify: func(mc *MaintenanceConfig) { mc.PenaltyPolicy = PenaltyPolicyDaily }},
		{name: "zero base amount", modify: func(mc *MaintenanceConfig) { mc.BaseAmount = decimal.Zero }, wantErr: true},
		{name: "negative base amount", modify: func(mc *MaintenanceConfig) { mc.BaseAmount = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "grace day out of range", modify: func(mc *MaintenanceConfig) { mc.GraceDay = 29 }, wantErr: true},
		{name: "creation day out of range", modify: func(mc *MaintenanceConfig) { mc.CreationDay = 0 }, wantErr: true},
		{name: "no penalty period", modify: func(mc *MaintenanceConfig) { mc.PenaltyPeriod = 0 }, wantErr: true},
		{name: "negative rate", modify: func(mc *MaintenanceConfig) { mc.PenaltyRate = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "unknown policy", modify: func(mc *MaintenanceConfig) { mc.PenaltyPolicy = "monthly" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := NewTestConfig().Maintenance
			tt.modify(&mc)
			if err := mc.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package models

import "time"

// ProductProfile is the local copy of the catalog flags the engine needs.
type ProductProfile struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"size:64;not null;uniqueIndex:idx_product_profile,priority:1" json:"tenant_id"`
	ProductId       int             `gorm:"not null;uniqueIndex:idx_product_profile,priority:2" json:"product_id"`
	TrackLots       bool            `gorm:"not null;default:false" json:"track_lots"`
	TrackSerials    bool            `gorm:"not null;default:false" json:"track_serials"`
	ValuationMethod ValuationMethod `gorm:"size:20;not null;default:weighted_average" json:"valuation_method"`
	CostingEnabled  bool            `gorm:"not null;default:false" json:"costing_enabled"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultProductProfile is used for products the catalog has no profile for.
func DefaultProductProfile(tenantId string, productId int) *ProductProfile {
	return &ProductProfile{
		TenantId:        tenantId,
		ProductId:       productId,
		ValuationMethod: ValuationMethodWeightedAverage,
	}
}

func (p *ProductProfile) UsesLots() bool {
	return p.TrackLots || p.TrackSerials
}

func (p *ProductProfile) UsesFifo() bool {
	return p.UsesLots() && p.ValuationMethod == ValuationMethodFifo
}

func (p *ProductProfile) TrackingType() TrackingType {
	if p.TrackSerials {
		return TrackingTypeSerial
	}
	return TrackingTypeLot
}

func (p *ProductProfile) Clone() *ProductProfile {
	c := *p
	return &c
}

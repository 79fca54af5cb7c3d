package planning

import (
	"strings"

	"schedule-builder/internal/domain"
)

// TierSplit - распределение PPV по ценовым уровням.
type TierSplit struct {
	Budget  int
	Mid     int
	Premium int
}

// Total возвращает сумму долей. Она может быть меньше исходного объёма.
func (s TierSplit) Total() int {
	return s.Budget + s.Mid + s.Premium
}

type tierRatios struct {
	budget, mid, premium float64
}

var (
	budgetRatios   = tierRatios{budget: 0.60, mid: 0.30, premium: 0.10}
	premiumRatios  = tierRatios{budget: 0.15, mid: 0.35, premium: 0.50}
	standardRatios = tierRatios{budget: 0.30, mid: 0.45, premium: 0.25}
)

// DistributeTiers делит объём PPV по ценовым уровням для сегмента.
// Каждая доля усекается независимо, потери при округлении не компенсируются.
func DistributeTiers(segment domain.BehavioralSegment, total int) TierSplit {
	ratios := standardRatios
	switch domain.BehavioralSegment(strings.ToUpper(strings.TrimSpace(string(segment)))) {
	case domain.SegmentBudget, domain.SegmentExploratory:
		ratios = budgetRatios
	case domain.SegmentPremium, domain.SegmentLuxury:
		ratios = premiumRatios
	}
	return TierSplit{
		Budget:  floorMul(total, ratios.budget),
		Mid:     floorMul(total, ratios.mid),
		Premium: floorMul(total, ratios.premium),
	}
}

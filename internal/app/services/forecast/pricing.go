package forecast

import (
	"github.com/gridwise/utility-rates/internal/app/domain/forecast"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
)

// priceEnergy prices a projected consumption against a rate structure. The
// usage samples, when present, shape the hour-of-day distribution used for
// time-of-use pricing; without samples each window is weighted by its share
// of the day.
func priceEnergy(rs rate.Structure, projectedKWh float64, samples []forecast.UsageSample) float64 {
	if projectedKWh <= 0 {
		return 0
	}

	switch rs.Kind {
	case rate.KindFlat:
		return projectedKWh * rs.PricePerKWh
	case rate.KindTiered:
		return priceTiered(rs.Tiers, projectedKWh)
	case rate.KindTimeOfUse:
		return priceTimeOfUse(rs.TimeOfUse, projectedKWh, samples)
	}
	return 0
}

func priceTiered(tiers []rate.Tier, kwh float64) float64 {
	var (
		cost      float64
		remaining = kwh
		prev      float64
	)
	for i, tier := range tiers {
		if remaining <= 0 {
			break
		}
		last := i == len(tiers)-1
		width := tier.UpToKWh - prev
		if last && tier.UpToKWh == 0 {
			// open-ended final tier absorbs the rest
			cost += remaining * tier.PricePerKWh
			remaining = 0
			break
		}
		portion := remaining
		if portion > width {
			portion = width
		}
		cost += portion * tier.PricePerKWh
		remaining -= portion
		prev = tier.UpToKWh
	}
	if remaining > 0 && len(tiers) > 0 {
		// consumption beyond the last bounded tier is priced at its rate
		cost += remaining * tiers[len(tiers)-1].PricePerKWh
	}
	return cost
}

func priceTimeOfUse(periods []rate.TOUPeriod, kwh float64, samples []forecast.UsageSample) float64 {
	weights := hourWeights(samples)

	var cost float64
	for _, p := range periods {
		var share float64
		for _, h := range hoursIn(p) {
			share += weights[h]
		}
		cost += kwh * share * p.PricePerKWh
	}
	return cost
}

// hourWeights returns the fraction of consumption attributed to each hour of
// the day. Without samples the distribution is uniform.
func hourWeights(samples []forecast.UsageSample) [24]float64 {
	var weights [24]float64

	var total float64
	for _, s := range samples {
		if s.KWh > 0 {
			weights[s.Timestamp.Hour()] += s.KWh
			total += s.KWh
		}
	}

	if total <= 0 {
		for h := range weights {
			weights[h] = 1.0 / 24
		}
		return weights
	}

	for h := range weights {
		weights[h] /= total
	}
	return weights
}

// A window whose end lands back on its start hour spans the whole day.
func hoursIn(p rate.TOUPeriod) []int {
	count := (p.EndHour%24 - p.StartHour + 24) % 24
	if count == 0 {
		count = 24
	}
	hours := make([]int, 0, count)
	h := p.StartHour
	for i := 0; i < count; i++ {
		hours = append(hours, h)
		h = (h + 1) % 24
	}
	return hours
}

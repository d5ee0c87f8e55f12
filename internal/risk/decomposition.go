package risk

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/quantrisk/risk-engine/pkg/models"
)

// componentVaR groups positions by asset class and computes each group's
// standalone VaR under the same method as the headline. A group whose
// recomputation fails is skipped rather than failing the request.
func (e *VaREngine) componentVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, historicalReturns map[string][]float64, req models.VaRRequest) []models.ComponentVaR {
	groups := make(map[models.AssetClass][]models.Position)
	for i := range portfolio.Positions {
		pos := portfolio.Positions[i]
		groups[pos.AssetClass] = append(groups[pos.AssetClass], pos)
	}

	total := portfolio.TotalValue()
	components := make([]models.ComponentVaR, 0, len(groups))
	sum := 0.0
	for class, positions := range groups {
		sub := &models.PortfolioSnapshot{
			PortfolioID: portfolio.PortfolioID,
			AsOfDate:    portfolio.AsOfDate,
			Positions:   positions,
		}
		v, err := e.headlineVaR(sub, model, historicalReturns, req)
		if err != nil {
			e.log.Warnf("component VaR for asset class %s failed: %v", class, err)
			continue
		}

		groupValue := sub.TotalValue()
		weight := 0.0
		if total != 0 {
			weight = groupValue / total
		}
		components = append(components, models.ComponentVaR{
			AssetClass: class,
			VaR:        v,
			Weight:     weight,
		})
		sum += v
	}

	for i := range components {
		if sum != 0 {
			components[i].PercentOfTotal = 100 * components[i].VaR / sum
		}
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].VaR > components[j].VaR
	})
	return components
}

// leaveOneOutVaR computes marginal and incremental VaR per position. Both
// measure the change in portfolio VaR from removing the position, so the
// leave-one-out recomputation is shared: one recomputed sub-portfolio per
// position, run across the worker pool. Failed entries carry their error
// and zero VaR; the remaining entries are unaffected.
func (e *VaREngine) leaveOneOutVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, historicalReturns map[string][]float64, req models.VaRRequest, totalVaR float64) ([]models.PositionVaR, []models.PositionVaR) {
	n := len(portfolio.Positions)
	if n < 2 {
		// Removing the only position leaves nothing to measure against
		return nil, nil
	}

	// Each worker writes its own index, no locking needed
	marginals := make([]models.PositionVaR, n)
	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for i := range portfolio.Positions {
		pos := portfolio.Positions[i]
		g.Go(func() error {
			reduced := portfolio.WithoutPosition(pos.ID)

			entry := models.PositionVaR{PositionID: pos.ID, Symbol: pos.Symbol}
			v, err := e.headlineVaR(reduced, model, historicalReturns, req)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.VaR = totalVaR - v
			}

			marginals[i] = entry
			return nil
		})
	}
	// Workers never return errors; failures are recorded per entry
	_ = g.Wait()

	incrementals := make([]models.PositionVaR, n)
	copy(incrementals, marginals)
	return marginals, incrementals
}

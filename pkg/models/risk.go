package models

import "time"

// VaRMethod selects the VaR calculation methodology
type VaRMethod string

const (
	// VaRMethodParametric assumes normally distributed portfolio returns
	VaRMethodParametric VaRMethod = "PARAMETRIC"
	// VaRMethodHistorical replays realized per-asset return history
	VaRMethodHistorical VaRMethod = "HISTORICAL_SIMULATION"
	// VaRMethodMonteCarlo simulates correlated return paths
	VaRMethodMonteCarlo VaRMethod = "MONTE_CARLO"
)

// Supported confidence levels and their one-sided normal z-scores
var ZScores = map[float64]float64{
	0.95:  1.645,
	0.99:  2.326,
	0.999: 3.090,
}

// IsSupportedConfidenceLevel reports whether the level is in the
// enumerated set {0.95, 0.99, 0.999}
func IsSupportedConfidenceLevel(level float64) bool {
	_, ok := ZScores[level]
	return ok
}

// VaRRequest parameterizes a VaR calculation
type VaRRequest struct {
	Method          VaRMethod `json:"method"`
	ConfidenceLevel float64   `json:"confidenceLevel"`
	TimeHorizonDays int       `json:"timeHorizonDays"`
	// NumberOfPaths applies to the Monte Carlo method only; 0 uses the
	// engine default of 10,000
	NumberOfPaths int `json:"numberOfPaths,omitempty"`
	// BacktestPeriod is the number of realized daily returns to replay.
	// 0 skips backtesting; a negative value asks for the server default
	// window.
	BacktestPeriod int `json:"backtestPeriod,omitempty"`
	// Seed makes Monte Carlo VaR reproducible; 0 draws a random seed
	Seed int64 `json:"seed,omitempty"`
}

// HypothesisTest is the outcome of a statistical backtest
type HypothesisTest struct {
	TestStatistic float64 `json:"testStatistic"`
	CriticalValue float64 `json:"criticalValue"`
	PValue        float64 `json:"pValue"`
	RejectNull    bool    `json:"rejectNull"`
}

// BacktestResult compares the VaR model against realized returns
type BacktestResult struct {
	Observations    int            `json:"observations"`
	Exceptions      int            `json:"exceptions"`
	ExceptionRate   float64        `json:"exceptionRate"`
	ExpectedRate    float64        `json:"expectedRate"`
	Kupiec          HypothesisTest `json:"kupiec"`
	Christoffersen  HypothesisTest `json:"christoffersen"`
	IsModelAccurate bool           `json:"isModelAccurate"`
}

// ComponentVaR is the standalone VaR of one asset-class sub-portfolio.
// Components are not rescaled to reconcile with DiversifiedVaR: their sum
// exceeds it whenever classes diversify each other, and the gap is the
// diversification benefit itself. PercentOfTotal is the entry's share of
// the component sum, not of DiversifiedVaR.
type ComponentVaR struct {
	AssetClass     AssetClass `json:"assetClass"`
	VaR            float64    `json:"var"`
	Weight         float64    `json:"weight"`
	PercentOfTotal float64    `json:"percentOfTotal"`
}

// PositionVaR is a per-position decomposition entry. Error is set when the
// entry's recomputation failed; the rest of the result is unaffected.
type PositionVaR struct {
	PositionID string  `json:"positionId"`
	Symbol     string  `json:"symbol"`
	VaR        float64 `json:"var"`
	Error      string  `json:"error,omitempty"`
}

// VaRResult is the outcome of a VaR calculation. Created fresh per request
// and owned by the caller.
type VaRResult struct {
	PortfolioID            string          `json:"portfolioId"`
	AsOfDate               time.Time       `json:"asOfDate"`
	Method                 VaRMethod       `json:"method"`
	ConfidenceLevel        float64         `json:"confidenceLevel"`
	TimeHorizonDays        int             `json:"timeHorizonDays"`
	PortfolioValue         float64         `json:"portfolioValue"`
	TotalVaR               float64         `json:"totalVaR"`
	DiversifiedVaR         float64         `json:"diversifiedVaR"`
	UndiversifiedVaR       float64         `json:"undiversifiedVaR"`
	DiversificationBenefit float64         `json:"diversificationBenefit"`
	ComponentVaRs          []ComponentVaR  `json:"componentVaR"`
	MarginalVaRs           []PositionVaR   `json:"marginalVaR"`
	IncrementalVaRs        []PositionVaR   `json:"incrementalVaR"`
	Backtest               *BacktestResult `json:"backtest,omitempty"`
	// ModelAccuracy is 1 - |observed - expected| exception rate when a
	// backtest was run, 0 otherwise
	ModelAccuracy float64 `json:"modelAccuracy"`
}

// MonteCarloRequest parameterizes a Monte Carlo simulation
type MonteCarloRequest struct {
	NumberOfPaths   int `json:"numberOfPaths"`
	TimeHorizonDays int `json:"timeHorizonDays"`
	// TimeSteps is the number of discrete steps per path; 0 defaults to
	// one step per horizon day
	TimeSteps int `json:"timeSteps,omitempty"`
	// Seed makes the run reproducible regardless of worker count; 0 draws
	// a random seed
	Seed            int64   `json:"seed,omitempty"`
	IncludeJumpRisk bool    `json:"includeJumpRisk,omitempty"`
	JumpIntensity   float64 `json:"jumpIntensity,omitempty"`
	JumpMean        float64 `json:"jumpMean,omitempty"`
	JumpStdDev      float64 `json:"jumpStdDev,omitempty"`
}

// PercentileEntry is one simulated-return percentile
type PercentileEntry struct {
	Rank   int     `json:"rank"`
	Return float64 `json:"return"`
}

// ConvergenceTest reports the batch-means convergence diagnostic
type ConvergenceTest struct {
	NumBatches         int     `json:"numBatches"`
	StandardError      float64 `json:"standardError"`
	HasConverged       bool    `json:"hasConverged"`
	ConfidenceLow      float64 `json:"confidenceLow"`
	ConfidenceHigh     float64 `json:"confidenceHigh"`
	RelativeError      float64 `json:"relativeError"`
	ConvergenceMessage string  `json:"convergenceMessage,omitempty"`
}

// MonteCarloResult aggregates the simulated return distribution
type MonteCarloResult struct {
	PortfolioID       string            `json:"portfolioId"`
	NumberOfPaths     int               `json:"numberOfPaths"`
	TimeHorizonDays   int               `json:"timeHorizonDays"`
	ExpectedReturn    float64           `json:"expectedReturn"`
	StandardDeviation float64           `json:"standardDeviation"`
	Skewness          float64           `json:"skewness"`
	Kurtosis          float64           `json:"kurtosis"`
	VaR95             float64           `json:"var95"`
	VaR99             float64           `json:"var99"`
	CVaR95            float64           `json:"cvar95"`
	CVaR99            float64           `json:"cvar99"`
	Percentiles       []PercentileEntry `json:"percentiles"`
	// MaxDrawdown is the worst single-trial terminal return, not a
	// running-maximum drawdown: the engine simulates terminal values only
	MaxDrawdown       float64         `json:"maxDrawdown"`
	ProbabilityOfLoss float64         `json:"probabilityOfLoss"`
	Convergence       ConvergenceTest `json:"convergenceTest"`
}

// FactorType identifies the market risk factor a shock applies to
type FactorType string

const (
	FactorTypeEquityIndex  FactorType = "EQUITY_INDEX"
	FactorTypeInterestRate FactorType = "INTEREST_RATE"
	FactorTypeCreditSpread FactorType = "CREDIT_SPREAD"
	FactorTypeCurrency     FactorType = "CURRENCY"
	FactorTypeVolatility   FactorType = "VOLATILITY"
	FactorTypeCommodity    FactorType = "COMMODITY"
)

// ShockType distinguishes percentage moves from absolute moves
type ShockType string

const (
	ShockTypeRelative ShockType = "RELATIVE"
	ShockTypeAbsolute ShockType = "ABSOLUTE"
)

// FactorShock is a hypothesized move in a single risk factor
type FactorShock struct {
	FactorType FactorType `json:"factorType"`
	FactorName string     `json:"factorName"`
	ShockType  ShockType  `json:"shockType"`
	// ShockValue is a percentage for relative shocks (-20 means -20%) and
	// an absolute move (e.g. rate change in decimal) otherwise
	ShockValue float64 `json:"shockValue"`
	Region     string  `json:"region,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Maturity   string  `json:"maturity,omitempty"`
}

// StressScenario is an immutable named set of factor shocks
type StressScenario struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	FactorShocks []FactorShock `json:"factorShocks"`
}

// PositionImpact is the shock impact on one position
type PositionImpact struct {
	PositionID    string  `json:"positionId"`
	Symbol        string  `json:"symbol"`
	CurrentValue  float64 `json:"currentValue"`
	ImpactAmount  float64 `json:"impactAmount"`
	ImpactPercent float64 `json:"impactPercent"`
}

// CorrelationChange records the stressed move of one correlation pair
type CorrelationChange struct {
	Asset1              string  `json:"asset1"`
	Asset2              string  `json:"asset2"`
	BaseCorrelation     float64 `json:"baseCorrelation"`
	StressedCorrelation float64 `json:"stressedCorrelation"`
}

// ScenarioResult is the portfolio-level outcome of one stress scenario
type ScenarioResult struct {
	ScenarioID              string              `json:"scenarioId"`
	ScenarioName            string              `json:"scenarioName"`
	PortfolioValue          float64             `json:"portfolioValue"`
	PortfolioChange         float64             `json:"portfolioChange"`
	PortfolioChangePercent  float64             `json:"portfolioChangePercent"`
	PositionImpacts         []PositionImpact    `json:"positionImpacts"`
	VaRUnderScenario        float64             `json:"varUnderScenario"`
	VolatilityUnderScenario float64             `json:"volatilityUnderScenario"`
	CorrelationChanges      []CorrelationChange `json:"correlationChanges"`
}

// FactorSensitivity ranks a factor by its regressed loss contribution
// across scenarios
type FactorSensitivity struct {
	FactorType   FactorType `json:"factorType"`
	Sensitivity  float64    `json:"sensitivity"`
	RSquared     float64    `json:"rSquared"`
	Observations int        `json:"observations"`
}

// StressTestRequest selects the scenarios to run
type StressTestRequest struct {
	Scenarios []StressScenario `json:"scenarios"`
	// IncludeHistorical adds the built-in 2008/2020/2000 scenario library
	IncludeHistorical bool `json:"includeHistorical,omitempty"`
}

// StressTestResult aggregates all scenario outcomes
type StressTestResult struct {
	PortfolioID         string              `json:"portfolioId"`
	AsOfDate            time.Time           `json:"asOfDate"`
	ScenarioResults     []ScenarioResult    `json:"scenarioResults"`
	WorstScenarioID     string              `json:"worstScenarioId"`
	FactorSensitivities []FactorSensitivity `json:"factorSensitivities"`
}

// PrincipalComponent is one extracted eigenpair of a correlation matrix
type PrincipalComponent struct {
	Eigenvalue                  float64   `json:"eigenvalue"`
	VarianceExplained           float64   `json:"varianceExplained"`
	CumulativeVarianceExplained float64   `json:"cumulativeVarianceExplained"`
	Loadings                    []float64 `json:"loadings"`
	Converged                   bool      `json:"converged"`
}

// CorrelationMatrix is a labelled matrix with its PCA decomposition
type CorrelationMatrix struct {
	Assets              []string             `json:"assets"`
	Matrix              [][]float64          `json:"matrix"`
	Eigenvalues         []float64            `json:"eigenvalues"`
	PrincipalComponents []PrincipalComponent `json:"principalComponents"`
}

// CategoryConcentration is the weight share of one category bucket
type CategoryConcentration struct {
	Dimension string  `json:"dimension"`
	Category  string  `json:"category"`
	Weight    float64 `json:"weight"`
}

// ConcentrationMetrics summarizes portfolio concentration.
// EffectiveNumberOfPositions is 1/HerfindahlIndex by construction.
type ConcentrationMetrics struct {
	HerfindahlIndex            float64                 `json:"herfindahlIndex"`
	Top5Concentration          float64                 `json:"top5Concentration"`
	Top10Concentration         float64                 `json:"top10Concentration"`
	EffectiveNumberOfPositions float64                 `json:"effectiveNumberOfPositions"`
	CategoryConcentrations     []CategoryConcentration `json:"categoryConcentrations"`
}

// RiskContribution is one position's Euler share of portfolio volatility
type RiskContribution struct {
	PositionID          string  `json:"positionId"`
	Symbol              string  `json:"symbol"`
	Weight              float64 `json:"weight"`
	Contribution        float64 `json:"contribution"`
	ContributionPercent float64 `json:"contributionPercent"`
	Error               string  `json:"error,omitempty"`
}

// CorrelationAnalysisOptions tunes the correlation analyzer
type CorrelationAnalysisOptions struct {
	// Categories to aggregate by; valid values are "assetClass", "sector"
	// and "geography". Empty runs position-level analysis only.
	GroupBy []string `json:"groupBy,omitempty"`
	// NumComponents is the number of eigenpairs to extract; 0 defaults to 5
	NumComponents int `json:"numComponents,omitempty"`
}

// CorrelationAnalysisResult combines correlation, PCA and concentration
type CorrelationAnalysisResult struct {
	PortfolioID          string                       `json:"portfolioId"`
	AsOfDate             time.Time                    `json:"asOfDate"`
	PositionMatrix       CorrelationMatrix            `json:"positionMatrix"`
	CategoryMatrices     map[string]CorrelationMatrix `json:"categoryMatrices,omitempty"`
	Concentration        ConcentrationMetrics         `json:"concentration"`
	PortfolioVolatility  float64                      `json:"portfolioVolatility"`
	DiversificationRatio float64                      `json:"diversificationRatio"`
	EffectiveBets        float64                      `json:"effectiveNumberOfBets"`
	RiskContributions    []RiskContribution           `json:"riskContributions"`
}

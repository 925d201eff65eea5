package service

import "FinSheet/internal/domain/models"

// TechnicalAnalyzer derives price-based indicators from an ordered bar series.
type TechnicalAnalyzer interface {
	Analyze(bars []models.PriceBar) (models.IndicatorSet, error)
}

// FundamentalAnalyzer derives ratio indicators from periodic statements.
type FundamentalAnalyzer interface {
	Analyze(stmts []models.FinancialStatement) (models.IndicatorSet, error)
}

// PredictionAnalyzer combines technical and fundamental indicator sets into a
// scored prediction for one instrument.
type PredictionAnalyzer interface {
	Predict(symbol string, technical, fundamental models.IndicatorSet) (models.Prediction, error)
}

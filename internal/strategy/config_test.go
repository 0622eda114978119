package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validYAML() []byte {
	return []byte(`
metadata:
  name: test-strategy
  version: "1.0"
analyzers:
  - name: ema
    enabled: true
    weight: 1
    priority: 1
    period: 20
entryThreshold: 60
riskManagement:
  stopLoss:
    atrMultiplier: 2
    minDistancePercent: 0.5
  takeProfits:
    - pricePercentFromEntry: 1
      sizePercentOfPosition: 50
    - pricePercentFromEntry: 2
      sizePercentOfPosition: 50
`)
}

func TestParse_ValidDocument(t *testing.T) {
	cfg, err := Parse(validYAML())
	require.NoError(t, err)
	assert.Equal(t, "test-strategy", cfg.Metadata.Name)
	assert.Len(t, cfg.Analyzers, 1)
}

func TestParse_ToleratesUnknownFields(t *testing.T) {
	data := append(validYAML(), []byte("\nsomeFutureField: true\n")...)
	_, err := Parse(data)
	assert.NoError(t, err)
}

func TestParse_RejectsMissingAnalyzers(t *testing.T) {
	data := []byte(`
metadata:
  name: bad
riskManagement:
  stopLoss:
    atrMultiplier: 2
  takeProfits:
    - pricePercentFromEntry: 1
      sizePercentOfPosition: 100
`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzers")
}

func TestParse_RejectsMissingStopLoss(t *testing.T) {
	data := []byte(`
analyzers:
  - name: ema
    enabled: true
riskManagement:
  takeProfits:
    - pricePercentFromEntry: 1
      sizePercentOfPosition: 100
`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopLoss")
}

func TestParse_RejectsMissingTakeProfits(t *testing.T) {
	data := []byte(`
analyzers:
  - name: ema
    enabled: true
riskManagement:
  stopLoss:
    atrMultiplier: 2
`)
	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takeProfits")
}

func TestValidate_RejectsBadSizePercentSum(t *testing.T) {
	cfg := Config{
		Analyzers: []AnalyzerEntry{{Name: "ema", Enabled: true}},
		RiskManagement: RiskManagement{
			StopLoss:    StopLossConfig{ATRMultiplier: 1},
			TakeProfits: []TakeProfitEntry{{PricePercentFromEntry: 1, SizePercentOfPosition: 40}},
		},
	}
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}

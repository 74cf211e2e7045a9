package processor

import (
	"crypto/md5"
	"fmt"
	"math"
	"math/big"

	"github.com/withObsrvr/whr-pipeline/utils"
)

// Residual bounds and constants.
const (
	DystopiaBaseline = 1.85

	IngestResidualMin = 0.1
	IngestResidualMax = 3.0

	HashResidualMin = 0.05
	HashResidualMax = 0.95
)

// IngestResidual approximates the dystopia residual from the published
// factors: |score - sum(factors) - baseline|, clamped and rounded to 3dp.
func IngestResidual(score float64, factors [6]float64) float64 {
	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	r := math.Abs(score - sum - DystopiaBaseline)
	return utils.Round(utils.Clamp(r, IngestResidualMin, IngestResidualMax), 3)
}

var thousand = big.NewInt(1000)

// HashResidual derives a reproducible per-country residual from
// md5("{country}_{ranking}") and the happiness score. The result is in
// [HashResidualMin, HashResidualMax] and rounded to 3dp.
func HashResidual(countryName string, ranking int64, score float64) float64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", countryName, ranking)))
	mod := new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), thousand)
	unique := float64(mod.Int64()) / 1000.0

	base := math.Max(0.1, (score-5.0)*0.3)
	r := utils.Clamp(base+unique*0.5, HashResidualMin, HashResidualMax)
	return utils.Round(r, 3)
}

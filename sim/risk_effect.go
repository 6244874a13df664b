package sim

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"gonum.org/v1/gonum/interp"
)

// targetPipelineName maps a declaration target path such as
// cause.measles.incidence_rate onto the engine's pipeline name.
func targetPipelineName(path string) string {
	if path == "cause.all_causes.mortality_rate" || path == mortalityPipelineName {
		return mortalityPipelineName
	}
	return strings.TrimPrefix(path, "cause.")
}

// RiskEffect multiplies a target rate pipeline by each simulant's relative
// risk for one exposure. The unexposed baseline is rescaled by the
// population-attributable fraction, computed once at setup and held fixed, so
// population-level rates stay calibrated to the external target.
type RiskEffect struct {
	riskPath   string
	targetPath string

	risk     *Risk
	pipeline string
	paf      float64

	// categorical
	rrByCategory map[string]float64

	// continuous
	curve    interp.PiecewiseLinear
	curveLo  float64
	curveHi  float64
	hasCurve bool
}

// NewRiskEffect builds the effect of a declared risk on a declared target
// rate, e.g. RiskEffect('risk_factor.vitamin_a_deficiency',
// 'cause.measles.incidence_rate').
func NewRiskEffect(riskPath, targetPath string) (*RiskEffect, error) {
	if !strings.Contains(riskPath, ".") {
		return nil, configErrorf("malformed risk path %q in risk effect", riskPath)
	}
	return &RiskEffect{riskPath: riskPath, targetPath: targetPath}, nil
}

func (e *RiskEffect) riskName() string {
	return e.riskPath[strings.Index(e.riskPath, ".")+1:]
}

func (e *RiskEffect) Name() string {
	return fmt.Sprintf("risk_effect.%s.on.%s", e.riskName(), targetPipelineName(e.targetPath))
}

func (e *RiskEffect) Setup(b *Builder) error {
	name := e.riskName()
	risk, ok := b.Risks[name]
	if !ok {
		return configErrorf("risk effect %s: risk %q must be declared before its effects", e.Name(), name)
	}
	e.risk = risk
	e.pipeline = targetPipelineName(e.targetPath)

	rows, err := b.Artifact.Table(fmt.Sprintf("%s.relative_risk", e.riskPath))
	if err != nil {
		return err
	}
	target := make([]struct {
		category string
		exposure float64
		value    float64
	}, 0, len(rows))
	for _, r := range rows {
		if r.Target != "" && r.Target != e.targetPath {
			continue
		}
		target = append(target, struct {
			category string
			exposure float64
			value    float64
		}{r.Category, r.Exposure, r.Value})
	}
	if len(target) == 0 {
		return &MissingRiskDataError{Risk: name, Category: "(no rows for target " + e.targetPath + ")"}
	}

	if risk.Categorical() {
		e.rrByCategory = make(map[string]float64, len(target))
		for _, t := range target {
			e.rrByCategory[t.category] = t.value
		}
		for _, cat := range risk.Categories() {
			if _, ok := e.rrByCategory[cat]; !ok {
				return &MissingRiskDataError{Risk: name, Category: cat}
			}
		}
		// PAF from the exposure-weighted mean relative risk.
		meanRR := 0.0
		for cat, w := range risk.CategoryWeights() {
			meanRR += w * e.rrByCategory[cat]
		}
		if meanRR > 0 {
			e.paf = (meanRR - 1) / meanRR
		}
	} else {
		sort.Slice(target, func(a, b int) bool { return target[a].exposure < target[b].exposure })
		xs := make([]float64, len(target))
		ys := make([]float64, len(target))
		for i, t := range target {
			xs[i] = t.exposure
			ys[i] = t.value
		}
		if len(xs) < 2 {
			return &MissingRiskDataError{Risk: name, Category: "(continuous curve needs at least two points)"}
		}
		if err := e.curve.Fit(xs, ys); err != nil {
			return configErrorf("risk effect %s: fit relative-risk curve: %v", e.Name(), err)
		}
		e.curveLo, e.curveHi = xs[0], xs[len(xs)-1]
		e.hasCurve = true
		e.paf = e.continuousPAF(b)
	}

	// A pre-computed PAF in the artifact overrides the local estimate.
	pafKey := fmt.Sprintf("%s.population_attributable_fraction", e.riskPath)
	if b.Artifact.HasTable(pafKey) {
		pafRows, err := b.Artifact.Table(pafKey)
		if err != nil {
			return err
		}
		for _, r := range pafRows {
			if r.Target == "" || r.Target == e.targetPath {
				e.paf = r.Value
				break
			}
		}
	}
	logrus.Debugf("%s: PAF=%.4f", e.Name(), e.paf)

	return b.Values.RegisterModifier(e.pipeline, DefaultModifierPriority, func(i int, v float64) float64 {
		return v * (1 - e.paf) * e.relativeRisk(i)
	})
}

// continuousPAF estimates the mean relative risk by integrating the RR curve
// over the exposure distribution at the population mean parameters, using a
// fixed quantile grid. Deterministic; computed once at setup.
func (e *RiskEffect) continuousPAF(b *Builder) float64 {
	const points = 99
	sum := 0.0
	for k := 1; k <= points; k++ {
		// Walk the distribution through a representative simulant-free
		// quantile grid using the propensity-to-exposure map directly.
		q := float64(k) / float64(points+1)
		x := e.risk.quantileAtReference(b, q)
		sum += e.predict(x)
	}
	meanRR := sum / points
	if meanRR <= 0 {
		return 0
	}
	return (meanRR - 1) / meanRR
}

func (e *RiskEffect) predict(x float64) float64 {
	if x < e.curveLo {
		x = e.curveLo
	}
	if x > e.curveHi {
		x = e.curveHi
	}
	return e.curve.Predict(x)
}

func (e *RiskEffect) relativeRisk(i int) float64 {
	if e.risk.Categorical() {
		return e.rrByCategory[e.risk.Category(i)]
	}
	return e.predict(e.risk.ContinuousExposure(i))
}

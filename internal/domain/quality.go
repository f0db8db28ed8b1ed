package domain

// Phase labels a quality report.
type Phase string

const (
	PhasePreLoad  Phase = "pre_load"
	PhasePostLoad Phase = "post_load"
)

// QualityReport summarizes one batch phase. It is built once by ScoreBatch and
// not modified afterwards.
type QualityReport struct {
	Phase            Phase                `json:"phase"`
	Total            int                  `json:"total"`
	Accepted         int                  `json:"accepted"`
	Rejected         int                  `json:"rejected"`
	RejectedByReason map[RejectReason]int `json:"rejected_by_reason"`
	NullRate         map[Field]float64    `json:"null_rate"`
	AbsentRate       map[Field]float64    `json:"absent_rate"`
	RangeViolations  map[Field]int        `json:"range_violations"`
	DuplicateCount   int                  `json:"duplicate_count"`
	ErrorRate        float64              `json:"error_rate"`
	Load             *UpsertResult        `json:"load,omitempty"` // post-load only
}

// ScoreBatch aggregates accepted observations and upstream rejections.
// Total is accepted plus rejected. Null and absent rates are per accepted
// record. Range violations count bounded numeric values outside their bounds;
// they are flagged, not filtered.
func ScoreBatch(phase Phase, accepted []Observation, rejected []Rejection) QualityReport {
	r := QualityReport{
		Phase:            phase,
		Accepted:         len(accepted),
		Rejected:         len(rejected),
		Total:            len(accepted) + len(rejected),
		RejectedByReason: make(map[RejectReason]int),
		NullRate:         make(map[Field]float64, len(fieldSpecs)),
		AbsentRate:       make(map[Field]float64, len(fieldSpecs)),
		RangeViolations:  make(map[Field]int),
	}

	for _, rej := range rejected {
		r.RejectedByReason[rej.Reason]++
	}
	r.DuplicateCount = r.RejectedByReason[ReasonDuplicate]

	nulls := make(map[Field]int, len(fieldSpecs))
	absents := make(map[Field]int, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		if spec.Kind == KindNumber && spec.Bounds.Bounded() {
			r.RangeViolations[spec.Field] = 0
		}
	}
	for _, o := range accepted {
		for _, spec := range fieldSpecs {
			v, ok := o.Fields[spec.Field]
			switch {
			case !ok:
				absents[spec.Field]++
			case v.IsNull():
				nulls[spec.Field]++
			default:
				if n, isNum := v.Number(); isNum && spec.Bounds.Bounded() && !spec.Bounds.Contains(n) {
					r.RangeViolations[spec.Field]++
				}
			}
		}
	}

	for _, spec := range fieldSpecs {
		r.NullRate[spec.Field] = rate(nulls[spec.Field], r.Accepted)
		r.AbsentRate[spec.Field] = rate(absents[spec.Field], r.Accepted)
	}
	r.ErrorRate = rate(r.Rejected, r.Total)
	return r
}

// ScorePostLoad scores the records submitted to the store against the store's
// outcome. Store rejections are added to the upstream rejections; records the
// store refused no longer count as accepted.
func ScorePostLoad(submitted []Observation, upstream []Rejection, res UpsertResult) QualityReport {
	refused := make(map[string]struct{}, len(res.Rejected))
	for _, rej := range res.Rejected {
		refused[rej.Ref] = struct{}{}
	}
	stored := make([]Observation, 0, len(submitted))
	for _, o := range submitted {
		if _, ok := refused[o.Ref]; !ok {
			stored = append(stored, o)
		}
	}
	rejected := make([]Rejection, 0, len(upstream)+len(res.Rejected))
	rejected = append(rejected, upstream...)
	rejected = append(rejected, res.Rejected...)

	r := ScoreBatch(PhasePostLoad, stored, rejected)
	r.Load = &res
	return r
}

// TotalRangeViolations sums violations over all fields.
func (r QualityReport) TotalRangeViolations() int {
	n := 0
	for _, c := range r.RangeViolations {
		n += c
	}
	return n
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

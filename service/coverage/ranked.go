package coverage

import (
	"math"
)

// 合同匹配程度
const (
	FitStrong  = "strong"
	FitPartial = "partial"
	FitNone    = "none"
)

// rankContracts 目录中每个网络作为一个合同打分（0-100）
func rankContracts(scored *Scored, settings AssignmentSettings) []RankedContract {
	names := scored.Networks
	ordered := make([]string, len(names))
	copy(ordered, names)
	sortByCoverage(ordered, scored)

	out := make([]RankedContract, 0, len(ordered))
	for _, n := range ordered {
		f := scored.Fraction(n)
		fit := FitNone
		switch {
		case scored.MatchCount[n] > 0 && f >= settings.CoverageThreshold:
			fit = FitStrong
		case scored.MatchCount[n] > 0:
			fit = FitPartial
		}
		out = append(out, RankedContract{
			Name:  n,
			Score: int(math.Round(f * 100)),
			Fit:   fit,
		})
	}
	return out
}

// memberFit 以主网络为基准统计成员分布
func memberFit(scored *Scored, primary string) MemberFit {
	var mf MemberFit
	for _, a := range scored.MemberAssignments {
		switch {
		case !a.Matched:
			mf.NoMatch++
		case a.AssignedNetwork == primary:
			mf.InNetwork++
		default:
			mf.OutOfNetwork++
		}
	}
	return mf
}

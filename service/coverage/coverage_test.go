/*
 * @module service/coverage/coverage_test
 * @description 覆盖率分配引擎单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @stateFlow 名单 + 目录 + 设置 -> 引擎 -> 结果验证
 * @rules 覆盖计分、决策、平局规则、回退策略与端到端示例
 * @dependencies testing, testify
 * @refs scorer.go, decision.go, run.go
 */

package coverage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleCatalog() *NetworkCatalog {
	return NewNetworkCatalog(
		[]string{"Cigna_PPO", "Aetna_HMO"},
		[]NetworkMapping{
			{Zip: "63011", Network: "Cigna_PPO"},
			{Zip: "63012", Network: "Cigna_PPO"},
			{Zip: "10001", Network: "Aetna_HMO"},
		},
	)
}

func exampleSettings() AssignmentSettings {
	return AssignmentSettings{DefaultNetwork: "Cigna_PPO", CoverageThreshold: 0.8}
}

func TestNormalizeZip(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "标准5位", input: "63011", expected: "63011"},
		{name: "两侧空白", input: " 63011 ", expected: "63011"},
		{name: "ZIP+4", input: "63011-1234", expected: "63011"},
		{name: "丢失前导零", input: "2134", expected: "02134"},
		{name: "非数字保持原样", input: "AB1", expected: "AB1"},
		{name: "空串", input: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeZip(tc.input))
		})
	}
}

func TestNewNetworkCatalog_DropsDanglingAndDuplicateMappings(t *testing.T) {
	c := NewNetworkCatalog(
		[]string{"A", "B", "A", " "},
		[]NetworkMapping{
			{Zip: "11111", Network: "A"},
			{Zip: "11111", Network: "B"},
			{Zip: "22222", Network: "Gone"},
		},
	)

	assert.Equal(t, []string{"A", "B"}, c.Networks())
	assert.Equal(t, 1, c.MappingCount())

	n, ok := c.Lookup("11111")
	assert.True(t, ok)
	assert.Equal(t, "A", n)

	_, ok = c.Lookup("22222")
	assert.False(t, ok, "指向目录外网络的映射应视为未映射")
}

func TestScore_PreservesCensusOrderAndExcludesInvalidRows(t *testing.T) {
	members := []MemberRow{{1, "99999"}, {2, "10001"}, {3, "63011"}, {4, "00000"}}

	scored := Score(members, exampleCatalog())

	require.Len(t, scored.MemberAssignments, 4)
	for i, m := range members {
		assert.Equal(t, m.Row, scored.MemberAssignments[i].Row)
	}
	assert.False(t, scored.MemberAssignments[0].Matched)
	assert.Empty(t, scored.MemberAssignments[0].AssignedNetwork)
	assert.Equal(t, "Aetna_HMO", scored.MemberAssignments[1].AssignedNetwork)

	assert.Equal(t, 2, scored.TotalValid)
	assert.Equal(t, []InvalidRow{{1, "99999"}, {4, "00000"}}, scored.InvalidRows)
	assert.InDelta(t, 0.5, scored.Fraction("Cigna_PPO"), 1e-9)
}

func TestScore_AggregationRoundTrip(t *testing.T) {
	members := []MemberRow{
		{1, "63011"}, {2, "63012"}, {3, "10001"}, {4, "10001"},
		{5, "10001"}, {6, "55555"}, {7, "63011"},
	}

	scored := Score(members, exampleCatalog())

	for network, fraction := range scored.CoverageByNetwork() {
		reproduced := int(fraction*float64(scored.TotalValid) + 0.5)
		assert.Equal(t, scored.MatchCount[network], reproduced, network)
	}
	var sum float64
	for _, f := range scored.CoverageByNetwork() {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScore_NoValidMembers(t *testing.T) {
	scored := Score([]MemberRow{{1, "00001"}}, exampleCatalog())

	assert.Zero(t, scored.TotalValid)
	for _, f := range scored.CoverageByNetwork() {
		assert.Zero(t, f)
	}

	d := Decide(scored, exampleSettings())
	assert.True(t, d.ReviewRequired)
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, "Cigna_PPO", d.PrimaryNetwork)
}

func TestDecide_AllSameNetwork(t *testing.T) {
	scored := Score([]MemberRow{{1, "10001"}, {2, "10001"}}, exampleCatalog())

	d := Decide(scored, AssignmentSettings{DefaultNetwork: "Cigna_PPO", CoverageThreshold: 1.0})

	assert.Equal(t, "Aetna_HMO", d.PrimaryNetwork)
	assert.Equal(t, 1.0, d.CoveragePercentage)
	assert.False(t, d.FallbackUsed)
	assert.False(t, d.ReviewRequired)
}

func TestDecide_BelowThresholdUsesDefault(t *testing.T) {
	catalog := NewNetworkCatalog(
		[]string{"A", "B", "Fallback"},
		[]NetworkMapping{{"11111", "A"}, {"22222", "B"}},
	)
	scored := Score([]MemberRow{{1, "11111"}, {2, "11111"}, {3, "22222"}}, catalog)

	d := Decide(scored, AssignmentSettings{DefaultNetwork: "Fallback", CoverageThreshold: 0.7})

	assert.True(t, d.FallbackUsed)
	assert.True(t, d.ReviewRequired)
	assert.Equal(t, "Fallback", d.PrimaryNetwork)
	assert.Equal(t, FallbackCoverage, d.CoveragePercentage)
	assert.Equal(t, "A", d.CandidateNetwork)
	assert.InDelta(t, 2.0/3.0, d.CandidateFraction, 1e-9)
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	scored := Score([]MemberRow{{1, "63011"}, {2, "63011"}, {3, "63011"}, {4, "10001"}}, exampleCatalog())

	d := Decide(scored, AssignmentSettings{DefaultNetwork: "Aetna_HMO", CoverageThreshold: 0.75})

	assert.False(t, d.FallbackUsed)
	assert.Equal(t, "Cigna_PPO", d.PrimaryNetwork)
}

func TestDecide_TieBreakIsLexicographic(t *testing.T) {
	catalog := NewNetworkCatalog(
		[]string{"Zeta", "Alpha"},
		[]NetworkMapping{{"11111", "Zeta"}, {"22222", "Alpha"}},
	)
	members := []MemberRow{{1, "11111"}, {2, "22222"}, {3, "11111"}, {4, "22222"}}
	settings := AssignmentSettings{DefaultNetwork: "Zeta", CoverageThreshold: 0.5}

	for i := 0; i < 20; i++ {
		d := Decide(Score(members, catalog), settings)
		require.Equal(t, "Alpha", d.PrimaryNetwork)
		require.False(t, d.FallbackUsed)
	}
}

func TestAssignmentSettings_Validate(t *testing.T) {
	catalog := exampleCatalog()

	assert.NoError(t, exampleSettings().Validate(catalog))
	assert.ErrorIs(t, AssignmentSettings{CoverageThreshold: 0.5}.Validate(catalog), ErrMissingDefaultNetwork)
	assert.ErrorIs(t, AssignmentSettings{DefaultNetwork: "Cigna_PPO", CoverageThreshold: 1.2}.Validate(catalog), ErrInvalidThreshold)
	assert.ErrorIs(t, AssignmentSettings{DefaultNetwork: "Cigna_PPO", CoverageThreshold: -0.1}.Validate(catalog), ErrInvalidThreshold)
	assert.ErrorIs(t, AssignmentSettings{DefaultNetwork: "Unknown", CoverageThreshold: 0.5}.Validate(catalog), ErrUnknownDefaultNetwork)
	assert.NoError(t, AssignmentSettings{DefaultNetwork: "Unknown", CoverageThreshold: 0.5}.Validate(nil))
}

func TestBuildRun_ExampleDirectMatch(t *testing.T) {
	members := []MemberRow{{1, "63011"}, {2, "63012"}, {3, "63011"}, {4, "99999"}}

	run, err := BuildRun("q-1", members, exampleCatalog(), exampleSettings(), ResultKindThreshold)
	require.NoError(t, err)

	s := run.Result.GroupSummary
	assert.Equal(t, "Cigna_PPO", s.PrimaryNetwork)
	assert.False(t, s.FallbackUsed)
	assert.True(t, s.ReviewRequired, "存在无效行时需要复核")
	assert.Equal(t, 3, s.TotalMembers)
	assert.Equal(t, []InvalidRow{{4, "99999"}}, s.InvalidRows)
	assert.Equal(t, 1.0, s.CoveragePercentage)
	assert.Equal(t, run.Result.CoverageByNetwork["Cigna_PPO"], s.CoveragePercentage)
	assert.Equal(t, 0.0, run.Result.CoverageByNetwork["Aetna_HMO"])
	assert.Equal(t, "Cigna_PPO", run.Recommendation)
	assert.Equal(t, 1.0, run.Confidence)
	assert.Equal(t, ResultKindThreshold, run.Mode)
	assert.Equal(t,
		"Primary network Cigna_PPO selected by direct ZIP coverage of 100% (3 of 3 members); 1 row had unmapped ZIP codes and need review",
		run.Rationale)
}

func TestBuildRun_ExampleFallback(t *testing.T) {
	members := []MemberRow{{1, "63011"}, {2, "10001"}, {3, "77777"}}

	run, err := BuildRun("q-2", members, exampleCatalog(), exampleSettings(), ResultKindThreshold)
	require.NoError(t, err)

	s := run.Result.GroupSummary
	assert.True(t, s.FallbackUsed)
	assert.Equal(t, "Cigna_PPO", s.PrimaryNetwork)
	assert.Equal(t, 1.0, s.CoveragePercentage)
	assert.Equal(t, 2, s.TotalMembers)
	assert.InDelta(t, 0.5, run.Result.CoverageByNetwork["Cigna_PPO"], 1e-9)
	assert.InDelta(t, 0.5, run.Confidence, 1e-9)
	assert.Equal(t,
		"Fallback network Cigna_PPO applied: best direct match Aetna_HMO covered only 50% of members, below the 80% threshold; 1 row had unmapped ZIP codes and need review",
		run.Rationale)
}

func TestBuildRun_InsufficientData(t *testing.T) {
	_, err := BuildRun("q-3", nil, exampleCatalog(), exampleSettings(), ResultKindThreshold)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = BuildRun("q-3", []MemberRow{{1, "00000"}, {2, "xxxxx"}}, exampleCatalog(), exampleSettings(), ResultKindThreshold)
	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 2, ide.TotalRows)
	assert.Equal(t, 2, ide.InvalidCount)
}

func TestBuildRun_InvalidSettingsPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = BuildRun("q-4", []MemberRow{{1, "63011"}}, exampleCatalog(),
			AssignmentSettings{DefaultNetwork: "Cigna_PPO", CoverageThreshold: 2}, ResultKindThreshold)
	})
}

func TestBuildRun_RankedMode(t *testing.T) {
	members := []MemberRow{{1, "63011"}, {2, "10001"}, {3, "10001"}, {4, "10001"}, {5, "12345"}}

	run, err := BuildRun("q-5", members, exampleCatalog(), exampleSettings(), ResultKindRanked)
	require.NoError(t, err)

	ranked, ok := run.Result.Ranked()
	require.True(t, ok)
	assert.Equal(t, ResultKindRanked, run.Mode)
	assert.Equal(t, []RankedContract{
		{Name: "Aetna_HMO", Score: 75, Fit: FitPartial},
		{Name: "Cigna_PPO", Score: 25, Fit: FitPartial},
	}, ranked.RankedContracts)

	// 75% < 80%，回退到Cigna_PPO
	assert.True(t, run.Result.GroupSummary.FallbackUsed)
	assert.Equal(t, MemberFit{InNetwork: 1, OutOfNetwork: 3, NoMatch: 1}, ranked.MemberFit)
}

func TestResult_JSONShape(t *testing.T) {
	threshold, err := BuildRun("q-6", []MemberRow{{1, "63011"}}, exampleCatalog(), exampleSettings(), ResultKindThreshold)
	require.NoError(t, err)
	raw, err := json.Marshal(threshold.Result)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ranked_contracts")
	assert.Contains(t, string(raw), `"kind":"threshold"`)
	_, ok := threshold.Result.Ranked()
	assert.False(t, ok)

	ranked, err := BuildRun("q-6", []MemberRow{{1, "63011"}}, exampleCatalog(), exampleSettings(), ResultKindRanked)
	require.NoError(t, err)
	raw, err = json.Marshal(ranked.Result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ranked", decoded["kind"])
	assert.Contains(t, decoded, "ranked_contracts")
	assert.Contains(t, decoded, "member_fit")

	var back Result
	require.NoError(t, json.Unmarshal(raw, &back))
	r, ok := back.Ranked()
	require.True(t, ok)
	assert.Equal(t, 1, r.MemberFit.InNetwork)
}

func TestParseResultKind(t *testing.T) {
	k, err := ParseResultKind("")
	require.NoError(t, err)
	assert.Equal(t, ResultKindThreshold, k)

	k, err = ParseResultKind("ranked")
	require.NoError(t, err)
	assert.Equal(t, ResultKindRanked, k)

	_, err = ParseResultKind("hybrid")
	assert.Error(t, err)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "94%", FormatPercent(0.94))
	assert.Equal(t, "62.5%", FormatPercent(0.625))
	assert.Equal(t, "100%", FormatPercent(1))
	assert.Equal(t, "0%", FormatPercent(0))
}

func TestRationale_UsesThousandsSeparators(t *testing.T) {
	catalog := NewNetworkCatalog([]string{"A"}, []NetworkMapping{{"11111", "A"}})
	members := make([]MemberRow, 1200)
	for i := range members {
		members[i] = MemberRow{Row: i + 1, Zip: "11111"}
	}

	run, err := BuildRun("q-7", members, catalog, AssignmentSettings{DefaultNetwork: "A", CoverageThreshold: 0.9}, ResultKindThreshold)
	require.NoError(t, err)
	assert.Contains(t, run.Rationale, "(1,200 of 1,200 members)")
}

/*
 * @module service/coverage/scorer
 * @description 覆盖率计分器：按ZIP将成员分配到网络并统计各网络匹配数
 * @architecture 领域服务 - 纯函数
 * @stateFlow 成员行 -> ZIP查找 -> 成员分配 + 无效行
 * @rules 未映射ZIP不计入分母；输出顺序与输入名单顺序一致
 * @dependencies 无
 * @refs service/coverage/decision.go
 */

package coverage

// MemberRow 标准化后的名单成员行
type MemberRow struct {
	Row int    `json:"row"`
	Zip string `json:"zip"`
}

// MemberAssignment 单个成员的网络分配结果
type MemberAssignment struct {
	Row             int    `json:"row"`
	Zip             string `json:"zip"`
	AssignedNetwork string `json:"assigned_network"`
	Matched         bool   `json:"matched"`
}

// InvalidRow ZIP无法映射的行
type InvalidRow struct {
	Row int    `json:"row"`
	Zip string `json:"zip"`
}

// Scored 计分结果
type Scored struct {
	Networks          []string
	MatchCount        map[string]int
	TotalValid        int
	MemberAssignments []MemberAssignment
	InvalidRows       []InvalidRow
}

// Score 对名单计分
func Score(members []MemberRow, catalog *NetworkCatalog) *Scored {
	s := &Scored{
		Networks:          catalog.Networks(),
		MatchCount:        make(map[string]int),
		MemberAssignments: make([]MemberAssignment, 0, len(members)),
		InvalidRows:       []InvalidRow{},
	}

	for _, m := range members {
		network, ok := catalog.Lookup(m.Zip)
		if !ok {
			s.InvalidRows = append(s.InvalidRows, InvalidRow{Row: m.Row, Zip: m.Zip})
			s.MemberAssignments = append(s.MemberAssignments, MemberAssignment{Row: m.Row, Zip: m.Zip})
			continue
		}
		s.MatchCount[network]++
		s.TotalValid++
		s.MemberAssignments = append(s.MemberAssignments, MemberAssignment{
			Row:             m.Row,
			Zip:             m.Zip,
			AssignedNetwork: network,
			Matched:         true,
		})
	}

	return s
}

// Fraction 网络覆盖率；有效成员为0时为0
func (s *Scored) Fraction(network string) float64 {
	if s.TotalValid == 0 {
		return 0
	}
	return float64(s.MatchCount[network]) / float64(s.TotalValid)
}

// CoverageByNetwork 目录中每个网络的覆盖率，未匹配的网络为0
func (s *Scored) CoverageByNetwork() map[string]float64 {
	out := make(map[string]float64, len(s.Networks))
	for _, n := range s.Networks {
		out[n] = s.Fraction(n)
	}
	return out
}

/*
 * @module service/coverage/catalog
 * @description 网络目录快照，保存有效网络标识与 ZIP→网络 映射表
 * @architecture 领域模型 - 值对象
 * @stateFlow 数据库读取 -> 构建快照 -> 单次计算内只读使用
 * @rules 一个ZIP最多映射到一个网络；映射到目录外网络的ZIP视为未映射
 * @dependencies 无
 * @refs service/network/catalog_service.go
 */

package coverage

import (
	"strings"
)

// NetworkMapping ZIP与网络的映射关系
type NetworkMapping struct {
	Zip     string `json:"zip"`
	Network string `json:"network"`
}

// NetworkCatalog 网络目录快照，构建后不可变
type NetworkCatalog struct {
	networks     []string
	index        map[string]struct{}
	zipToNetwork map[string]string
}

// NewNetworkCatalog 根据网络列表和映射表构建目录快照
// 网络顺序保持输入顺序（重复项只保留第一次出现）；同一ZIP出现多次时以第一条为准
func NewNetworkCatalog(networks []string, mappings []NetworkMapping) *NetworkCatalog {
	c := &NetworkCatalog{
		networks:     make([]string, 0, len(networks)),
		index:        make(map[string]struct{}, len(networks)),
		zipToNetwork: make(map[string]string, len(mappings)),
	}

	for _, n := range networks {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := c.index[n]; ok {
			continue
		}
		c.index[n] = struct{}{}
		c.networks = append(c.networks, n)
	}

	for _, m := range mappings {
		zip := NormalizeZip(m.Zip)
		if zip == "" {
			continue
		}
		// 悬空映射：网络已不在目录中
		if _, ok := c.index[m.Network]; !ok {
			continue
		}
		if _, exists := c.zipToNetwork[zip]; exists {
			continue
		}
		c.zipToNetwork[zip] = m.Network
	}

	return c
}

// Networks 返回目录中的网络标识（副本）
func (c *NetworkCatalog) Networks() []string {
	out := make([]string, len(c.networks))
	copy(out, c.networks)
	return out
}

// Has 判断网络是否在目录中
func (c *NetworkCatalog) Has(network string) bool {
	_, ok := c.index[network]
	return ok
}

// Lookup 查询ZIP对应的网络
func (c *NetworkCatalog) Lookup(zip string) (string, bool) {
	n, ok := c.zipToNetwork[NormalizeZip(zip)]
	return n, ok
}

// MappingCount 有效映射数量
func (c *NetworkCatalog) MappingCount() int {
	return len(c.zipToNetwork)
}

// NormalizeZip 规范化ZIP：去空白，ZIP+4只取前5位，不足5位的纯数字左侧补0
func NormalizeZip(zip string) string {
	zip = strings.TrimSpace(zip)
	if i := strings.IndexByte(zip, '-'); i > 0 {
		zip = zip[:i]
	}
	if zip == "" || len(zip) >= 5 || !isDigits(zip) {
		return zip
	}
	return strings.Repeat("0", 5-len(zip)) + zip
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

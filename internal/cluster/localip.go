// Package cluster 本机 IP 选择
package cluster

import (
	"fmt"
	"net"
)

// teredoPrefix Teredo 隧道地址 2001:0000::/32
var teredoPrefix = func() *net.IPNet {
	_, n, _ := net.ParseCIDR("2001::/32")
	return n
}()

// LocalIP 选择本机对外标识用的 IP 地址
//
// 过滤规则：剔除 IPv6 链路本地/组播/站点本地/Teredo 地址，
// 剔除 169. 开头的 IPv4（链路本地自动配置），优先非回环地址，
// 返回剩余的第一个。测试直接向 selectIP 传入候选列表。
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate addresses: %w", err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		switch v := addr.(type) {
		case *net.IPNet:
			ips = append(ips, v.IP)
		case *net.IPAddr:
			ips = append(ips, v.IP)
		}
	}
	return selectIP(ips)
}

// selectIP 按过滤规则从候选地址中选择
func selectIP(ips []net.IP) (string, error) {
	var candidates []net.IP
	for _, ip := range ips {
		if ip == nil || eliminated(ip) {
			continue
		}
		candidates = append(candidates, ip)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no usable address among %d candidates", len(ips))
	}

	for _, ip := range candidates {
		if !ip.IsLoopback() {
			return ip.String(), nil
		}
	}
	return candidates[0].String(), nil
}

// eliminated 是否被过滤规则剔除
func eliminated(ip net.IP) bool {
	if ip.To4() != nil {
		// 169.254.0.0/16 链路本地；原实现按前缀 169. 整段剔除
		return ip.To4()[0] == 169
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if isSiteLocal(ip) || teredoPrefix.Contains(ip) {
		return true
	}
	return false
}

// isSiteLocal IPv6 站点本地地址 fec0::/10（已废弃但仍需剔除）
func isSiteLocal(ip net.IP) bool {
	return len(ip) == net.IPv6len && ip[0] == 0xfe && (ip[1]&0xc0) == 0xc0
}

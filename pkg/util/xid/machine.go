package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/netip"
	"os"
	"strconv"
)

// EnvMachineID 显式指定机器 ID 的环境变量。
const EnvMachineID = "SECKILL_MACHINE_ID"

var (
	osHostname        = os.Hostname
	netInterfaceAddrs = net.InterfaceAddrs
)

// DefaultMachineID 按以下顺序获取机器 ID：
//  1. 环境变量 SECKILL_MACHINE_ID（0-65535）
//  2. os.Hostname 的 FNV 哈希折叠为 16 位
//  3. 私有 IPv4 的低 16 位
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}

	hostname, hostErr := osHostname()
	if hostErr == nil && hostname != "" {
		return hashToMachineID(hostname), nil
	}
	if hostErr == nil {
		hostErr = errors.New("empty hostname")
	}

	ip, err := privateIPv4()
	if err != nil {
		return 0, fmt.Errorf("xid: no machine id source (hostname: %v): %w", hostErr, err)
	}
	b := ip.As4()
	return uint16(b[2])<<8 | uint16(b[3]), nil
}

func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum)
}

func privateIPv4() (netip.Addr, error) {
	addrs, err := netInterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if ip.Is4() && !ip.IsLoopback() && (ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			return ip, nil
		}
	}
	return netip.Addr{}, ErrNoPrivateAddress
}

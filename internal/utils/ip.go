package utils

import (
	"net/netip"
	"strconv"
	"strings"
)

// subnetMasks maps dotted subnet masks and their wildcard complements to a
// prefix length. "0.0.0.0" is the complement of "255.255.255.255" and maps to
// 32, so a zero mask is never read as /0.
var subnetMasks = map[string]int{
	"128.0.0.0": 1, "127.255.255.255": 1,
	"192.0.0.0": 2, "63.255.255.255": 2,
	"224.0.0.0": 3, "31.255.255.255": 3,
	"240.0.0.0": 4, "15.255.255.255": 4,
	"248.0.0.0": 5, "7.255.255.255": 5,
	"252.0.0.0": 6, "3.255.255.255": 6,
	"254.0.0.0": 7, "1.255.255.255": 7,
	"255.0.0.0": 8, "0.255.255.255": 8,
	"255.128.0.0": 9, "0.127.255.255": 9,
	"255.192.0.0": 10, "0.63.255.255": 10,
	"255.224.0.0": 11, "0.31.255.255": 11,
	"255.240.0.0": 12, "0.15.255.255": 12,
	"255.248.0.0": 13, "0.7.255.255": 13,
	"255.252.0.0": 14, "0.3.255.255": 14,
	"255.254.0.0": 15, "0.1.255.255": 15,
	"255.255.0.0": 16, "0.0.255.255": 16,
	"255.255.128.0": 17, "0.0.127.255": 17,
	"255.255.192.0": 18, "0.0.63.255": 18,
	"255.255.224.0": 19, "0.0.31.255": 19,
	"255.255.240.0": 20, "0.0.15.255": 20,
	"255.255.248.0": 21, "0.0.7.255": 21,
	"255.255.252.0": 22, "0.0.3.255": 22,
	"255.255.254.0": 23, "0.0.1.255": 23,
	"255.255.255.0": 24, "0.0.0.255": 24,
	"255.255.255.128": 25, "0.0.0.127": 25,
	"255.255.255.192": 26, "0.0.0.63": 26,
	"255.255.255.224": 27, "0.0.0.31": 27,
	"255.255.255.240": 28, "0.0.0.15": 28,
	"255.255.255.248": 29, "0.0.0.7": 29,
	"255.255.255.252": 30, "0.0.0.3": 30,
	"255.255.255.254": 31, "0.0.0.1": 31,
	"255.255.255.255": 32, "0.0.0.0": 32,
}

// MaskToPrefix returns the prefix length for a subnet or wildcard mask.
func MaskToPrefix(mask string) (int, bool) {
	p, ok := subnetMasks[mask]
	return p, ok
}

// MaskedCIDR renders "addr/prefix" for a dotted address and mask.
func MaskedCIDR(addr, mask string) (string, bool) {
	p, ok := MaskToPrefix(mask)
	if !ok {
		return "", false
	}
	return addr + "/" + strconv.Itoa(p), true
}

// HostCIDR renders a single address as a /32.
func HostCIDR(addr string) string {
	return addr + "/32"
}

// IsIPv4 reports whether s is a dotted-quad IPv4 address.
func IsIPv4(s string) bool {
	a, err := netip.ParseAddr(s)
	return err == nil && a.Is4()
}

// Address strips the prefix length from a CIDR string.
func Address(cidr string) string {
	addr, _, _ := strings.Cut(cidr, "/")
	return addr
}

package wellknown

import "testing"

func TestGetServiceReturnsDNSAliases(t *testing.T) {
	// This test ensures DNS aliases map to the expected port/protocol entries.
	entries, ok := GetService("dns")
	if !ok {
		t.Fatalf("expected dns to be present in well-known service registry")
	}
	if !containsPort(entries, 53, TCP) || !containsPort(entries, 53, UDP) {
		t.Fatalf("expected DNS to include port 53 over tcp and udp, got %#v", entries)
	}
}

func TestGetServiceKeepsProtocolSpecificNames(t *testing.T) {
	// 514 is rsh over tcp and syslog over udp.
	entries, ok := GetService("syslog")
	if !ok || !containsPort(entries, 514, UDP) || containsPort(entries, 514, TCP) {
		t.Fatalf("expected syslog to be 514/udp only, got %#v", entries)
	}
	entries, ok = GetService("RSH")
	if !ok || !containsPort(entries, 514, TCP) {
		t.Fatalf("expected rsh to be 514/tcp, got %#v", entries)
	}
}

func TestGetServiceReturnsFalseForUnknown(t *testing.T) {
	// This test validates the registry returns false for unknown services.
	_, ok := GetService("definitely-not-a-service")
	if ok {
		t.Fatalf("expected unknown service to return ok=false")
	}
}

func TestPortTranslatesNamesAndPassesNumbers(t *testing.T) {
	tests := []struct {
		token string
		want  string
		ok    bool
	}{
		{"80", "80", true},
		{"www", "80", true},
		{"https", "443", true},
		{"ftp-data", "20", true},
		{"netbios-ssn", "139", true},
		{"ldaps", "636", true},
		{"sqlnet", "1521", true},
		{"bogus-name", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := Port(tt.token)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Port(%q) = %q, %v; want %q, %v", tt.token, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func containsPort(entries []ServiceEntry, port int, protocol Protocol) bool {
	// Helper keeps entry inspection readable for multiple service assertions.
	for _, entry := range entries {
		if entry.Port == port && entry.Protocol == protocol {
			return true
		}
	}
	return false
}

package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

type ServiceEntry struct {
	Protocol Protocol
	Port     int
}

var serviceRegistry map[string][]ServiceEntry

func init() {
	serviceRegistry = make(map[string][]ServiceEntry)
	reader := csv.NewReader(bytes.NewBufferString(wellKnownPortsData))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded well_known_ports.csv: %v", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded well_known_ports.csv: %v", err)
		}
		if len(record) < 3 {
			continue
		}

		port, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}

		register(strings.TrimSpace(record[1]), ServiceEntry{Protocol: TCP, Port: port})
		register(strings.TrimSpace(record[2]), ServiceEntry{Protocol: UDP, Port: port})
	}
}

func register(name string, entry ServiceEntry) {
	if name == "" || name == "N/A" {
		return
	}
	key := strings.ToUpper(name)
	serviceRegistry[key] = append(serviceRegistry[key], entry)
	// Add common alias for DNS
	if name == "domain" {
		serviceRegistry["DNS"] = append(serviceRegistry["DNS"], entry)
	}
}

// GetService returns the port and protocol entries for an ASA port literal.
func GetService(name string) ([]ServiceEntry, bool) {
	entry, ok := serviceRegistry[strings.ToUpper(name)]
	return entry, ok
}

// Port translates a port token to its number. Numeric tokens pass through.
func Port(token string) (string, bool) {
	if _, err := strconv.Atoi(token); err == nil {
		return token, true
	}
	entries, ok := GetService(token)
	if !ok || len(entries) == 0 {
		return "", false
	}
	return strconv.Itoa(entries[0].Port), true
}

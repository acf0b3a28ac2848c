// Package config loads the static party_id -> (host, port) endpoint
// table a session needs to wire up package transport, either from the
// built-in basePort+id-1 default or from a JSON file, following this
// repository's teacher's own ClusterConfig loader.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andrebq/spdz-mpc/transport"
)

// DefaultBasePort is the reference fixture's base TCP port; party id i
// listens on DefaultBasePort+i-1 unless a JSON endpoint file overrides it.
const DefaultBasePort = 5555

var (
	// ErrDuplicateAddress is returned when two parties share a host:port.
	ErrDuplicateAddress = errors.New("config: duplicate endpoint address")
	// ErrUnknownParty is returned when a referenced party id has no endpoint.
	ErrUnknownParty = errors.New("config: unknown party id")
	// ErrInvalidEndpoint is returned when an endpoint entry fails host:port validation.
	ErrInvalidEndpoint = errors.New("config: invalid endpoint")
)

// Endpoint is one row of the static party_id -> (host, port) table.
type Endpoint struct {
	ID   transport.PartyID `json:"id"`
	Host string            `json:"host"`
	Port int               `json:"port"`
}

// ClusterConfig is the on-disk shape of a custom endpoint table.
type ClusterConfig struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// DefaultEndpoints builds the reference fixture's table: numParties
// workers at ids 1..numParties plus the dealer at numParties+1, each at
// 127.0.0.1:basePort+id-1.
func DefaultEndpoints(numParties int, basePort int) map[transport.PartyID]string {
	out := make(map[transport.PartyID]string, numParties+1)
	for id := 1; id <= numParties+1; id++ {
		out[transport.PartyID(id)] = fmt.Sprintf("127.0.0.1:%d", basePort+id-1)
	}
	return out
}

// LoadClusterConfig reads and validates a JSON endpoint table from path,
// rejecting any path that escapes baseDir.
func LoadClusterConfig(baseDir, path string) (map[transport.PartyID]string, error) {
	safePath, err := SecurePath(baseDir, path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", safePath, err)
	}
	var cc ClusterConfig
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", safePath, err)
	}
	return ValidateEndpoints(cc.Endpoints)
}

// SecurePath joins baseDir and path, refusing any result that escapes
// baseDir via ".." traversal.
func SecurePath(baseDir, path string) (string, error) {
	joined := filepath.Join(baseDir, path)
	rel, err := filepath.Rel(baseDir, joined)
	if err != nil {
		return "", fmt.Errorf("config: %w: %v", ErrInvalidEndpoint, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("config: %w: path %q escapes %q", ErrInvalidEndpoint, path, baseDir)
	}
	return joined, nil
}

// ValidateEndpoints checks for duplicate ids, duplicate addresses and
// malformed host:port entries, returning the id->address map on success.
func ValidateEndpoints(endpoints []Endpoint) (map[transport.PartyID]string, error) {
	out := make(map[transport.PartyID]string, len(endpoints))
	seenAddr := make(map[string]transport.PartyID, len(endpoints))
	for _, e := range endpoints {
		if _, exists := out[e.ID]; exists {
			return nil, fmt.Errorf("config: %w: party %d listed twice", ErrInvalidEndpoint, e.ID)
		}
		addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("config: %w: party %d: %v", ErrInvalidEndpoint, e.ID, err)
		}
		if other, exists := seenAddr[addr]; exists {
			return nil, fmt.Errorf("config: %w: %s used by parties %d and %d", ErrDuplicateAddress, addr, other, e.ID)
		}
		seenAddr[addr] = e.ID
		out[e.ID] = addr
	}
	return out, nil
}

// PartyArgs is the parsed form of the CLI's six positional arguments
// (spec.md §6): <mode> <party_id> <num_parties> <input_value>
// <has_secret> <operation>.
type PartyArgs struct {
	Mode       string
	PartyID    transport.PartyID
	NumParties int
	InputValue uint64
	HasSecret  bool
	Operation  string
}

// ParsePartyArgs parses the fixed six-argument positional CLI form.
func ParsePartyArgs(args []string) (PartyArgs, error) {
	if len(args) != 6 {
		return PartyArgs{}, fmt.Errorf("config: expected 6 positional arguments, got %d", len(args))
	}
	mode := args[0]
	if mode != "reqrep" && mode != "dealerrouter" {
		return PartyArgs{}, fmt.Errorf("config: %w: unknown mode %q", ErrInvalidEndpoint, mode)
	}
	partyID, err := strconv.Atoi(args[1])
	if err != nil || partyID < 1 {
		return PartyArgs{}, fmt.Errorf("config: invalid party_id %q", args[1])
	}
	numParties, err := strconv.Atoi(args[2])
	if err != nil || numParties < 1 {
		return PartyArgs{}, fmt.Errorf("config: invalid num_parties %q", args[2])
	}
	inputValue, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return PartyArgs{}, fmt.Errorf("config: invalid input_value %q", args[3])
	}
	hasSecretInt, err := strconv.Atoi(args[4])
	if err != nil || (hasSecretInt != 0 && hasSecretInt != 1) {
		return PartyArgs{}, fmt.Errorf("config: invalid has_secret %q", args[4])
	}
	operation := args[5]
	if operation != "add" && operation != "mul" {
		return PartyArgs{}, fmt.Errorf("config: invalid operation %q", operation)
	}
	return PartyArgs{
		Mode:       mode,
		PartyID:    transport.PartyID(partyID),
		NumParties: numParties,
		InputValue: inputValue,
		HasSecret:  hasSecretInt == 1,
		Operation:  operation,
	}, nil
}

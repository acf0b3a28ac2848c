package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrebq/spdz-mpc/internal/config"
	"github.com/andrebq/spdz-mpc/transport"
)

func TestDefaultEndpointsMatchesReferenceFixture(t *testing.T) {
	eps := config.DefaultEndpoints(3, config.DefaultBasePort)
	require.Len(t, eps, 4)
	require.Equal(t, "127.0.0.1:5555", eps[1])
	require.Equal(t, "127.0.0.1:5557", eps[3])
	require.Equal(t, "127.0.0.1:5558", eps[4])
}

func TestValidateEndpointsRejectsDuplicateAddress(t *testing.T) {
	_, err := config.ValidateEndpoints([]config.Endpoint{
		{ID: 1, Host: "127.0.0.1", Port: 5555},
		{ID: 2, Host: "127.0.0.1", Port: 5555},
	})
	require.ErrorIs(t, err, config.ErrDuplicateAddress)
}

func TestValidateEndpointsRejectsDuplicateID(t *testing.T) {
	_, err := config.ValidateEndpoints([]config.Endpoint{
		{ID: 1, Host: "127.0.0.1", Port: 5555},
		{ID: 1, Host: "127.0.0.1", Port: 5556},
	})
	require.ErrorIs(t, err, config.ErrInvalidEndpoint)
}

func TestSecurePathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := config.SecurePath(dir, "../outside.json")
	require.ErrorIs(t, err, config.ErrInvalidEndpoint)
}

func TestLoadClusterConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	body := `{"endpoints":[{"id":1,"host":"127.0.0.1","port":5555},{"id":2,"host":"127.0.0.1","port":5556}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cluster.json"), []byte(body), 0o600))

	eps, err := config.LoadClusterConfig(dir, "cluster.json")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:5555", eps[transport.PartyID(1)])
	require.Equal(t, "127.0.0.1:5556", eps[transport.PartyID(2)])
}

func TestParsePartyArgsValid(t *testing.T) {
	args, err := config.ParsePartyArgs([]string{"dealerrouter", "4", "3", "7", "1", "add"})
	require.NoError(t, err)
	require.Equal(t, transport.PartyID(4), args.PartyID)
	require.Equal(t, 3, args.NumParties)
	require.Equal(t, uint64(7), args.InputValue)
	require.True(t, args.HasSecret)
	require.Equal(t, "add", args.Operation)
}

func TestParsePartyArgsRejectsWrongCount(t *testing.T) {
	_, err := config.ParsePartyArgs([]string{"dealerrouter", "4"})
	require.Error(t, err)
}

func TestParsePartyArgsRejectsUnknownMode(t *testing.T) {
	_, err := config.ParsePartyArgs([]string{"zmq", "1", "3", "7", "0", "add"})
	require.Error(t, err)
}

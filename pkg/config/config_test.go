package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *Config {
	return &Config{
		Bind:                     "0.0.0.0:25577",
		PlayerInfoForwardingMode: "none",
		CompressionThreshold:     256,
		CompressionLevel:         -1,
		Servers:                  ServersConfig{DynamicFallbacksFilter: "FIRST_AVAILABLE"},
		PingPassthrough:          "DISABLED",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(baseConfig()))
}

func TestValidateRejectsEmptyBind(t *testing.T) {
	c := baseConfig()
	c.Bind = ""
	assert.Error(t, Validate(c))
}

func TestValidateRequiresForwardingSecretForModern(t *testing.T) {
	c := baseConfig()
	c.PlayerInfoForwardingMode = "modern"
	assert.Error(t, Validate(c))

	c.ForwardingSecret = "s3cr3t"
	assert.NoError(t, Validate(c))
}

func TestValidateRejectsUnknownFallbackFilter(t *testing.T) {
	c := baseConfig()
	c.Servers.DynamicFallbacksFilter = "RANDOM"
	assert.Error(t, Validate(c))
}

func TestLoadServerAddressesSkipsFixedKeys(t *testing.T) {
	v := viper.New()
	v.Set("servers.lobby", "127.0.0.1:25566")
	v.Set("servers.try", []string{"lobby"})
	v.Set("servers.dynamic-fallbacks-filter", "FIRST_AVAILABLE")

	addrs := LoadServerAddresses(v)
	require.Len(t, addrs, 1)
	assert.Equal(t, "127.0.0.1:25566", addrs["lobby"])
}

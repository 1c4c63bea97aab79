package stamps

import (
	"context"
	"testing"

	"github.com/hashicorp/vault/sdk/logical"

	"github.com/stampchain-io/vault-plugin-stamps/multisig"
)

func TestConfigCRUD(t *testing.T) {
	b, s := getTestBackend(t, nil)

	resp := handle(t, b, s, logical.ReadOperation, "config", nil)
	if resp != nil {
		t.Fatalf("read before write = %v, want nil", resp.Data)
	}

	resp = handle(t, b, s, logical.CreateOperation, "config", map[string]interface{}{
		"network":             "testnet4",
		"service_fee_address": "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
		"service_fee_sats":    1000,
	})
	if resp != nil && resp.IsError() {
		t.Fatalf("create config error = %v", resp.Error())
	}

	resp = handle(t, b, s, logical.ReadOperation, "config", nil)
	want := map[string]interface{}{
		"backend":             "electrum",
		"network":             "testnet4",
		"min_confirmations":   1,
		"service_fee_sats":    int64(1000),
		"burn_key":            multisig.DefaultBurnKey,
		"retry_max_attempts":  3,
		"retry_delay":         int64(1),
		"electrum_url":        "(random from pool)",
		"service_fee_address": "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
	}
	for k, v := range want {
		if resp.Data[k] != v {
			t.Errorf("config[%s] = %v (%T), want %v (%T)", k, resp.Data[k], resp.Data[k], v, v)
		}
	}

	// Update keeps unspecified fields.
	resp = handle(t, b, s, logical.UpdateOperation, "config", map[string]interface{}{
		"min_confirmations": 0,
		"retry_delay":       "5s",
	})
	if resp != nil && resp.IsError() {
		t.Fatalf("update config error = %v", resp.Error())
	}
	resp = handle(t, b, s, logical.ReadOperation, "config", nil)
	if resp.Data["network"] != "testnet4" || resp.Data["min_confirmations"] != 0 || resp.Data["retry_delay"] != int64(5) {
		t.Errorf("config after update = %v", resp.Data)
	}

	handle(t, b, s, logical.DeleteOperation, "config", nil)
	if resp := handle(t, b, s, logical.ReadOperation, "config", nil); resp != nil {
		t.Errorf("read after delete = %v, want nil", resp.Data)
	}
}

func TestConfigNetworkAlias(t *testing.T) {
	b, s := getTestBackend(t, nil)

	handle(t, b, s, logical.CreateOperation, "config", map[string]interface{}{"network": "bitcoin"})
	resp := handle(t, b, s, logical.ReadOperation, "config", nil)
	if resp.Data["network"] != "mainnet" {
		t.Errorf("network = %v, want mainnet", resp.Data["network"])
	}
}

func TestConfigBitcoindHidesPassword(t *testing.T) {
	b, s := getTestBackend(t, nil)

	resp := handle(t, b, s, logical.CreateOperation, "config", map[string]interface{}{
		"network":  "regtest",
		"backend":  "bitcoind",
		"rpc_host": "127.0.0.1:18443",
		"rpc_user": "user",
		"rpc_pass": "secret",
	})
	if resp != nil && resp.IsError() {
		t.Fatalf("create config error = %v", resp.Error())
	}

	resp = handle(t, b, s, logical.ReadOperation, "config", nil)
	if resp.Data["rpc_host"] != "127.0.0.1:18443" || resp.Data["rpc_user"] != "user" {
		t.Errorf("config = %v", resp.Data)
	}
	if _, ok := resp.Data["rpc_pass"]; ok {
		t.Error("config read returned rpc_pass")
	}

	config, err := getConfig(context.Background(), s)
	if err != nil {
		t.Fatalf("getConfig() error = %v", err)
	}
	if config.RPCPass != "secret" {
		t.Errorf("stored RPCPass = %q, want secret", config.RPCPass)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{"unknown network", map[string]interface{}{"network": "dogecoin"}},
		{"unknown backend", map[string]interface{}{"backend": "blockcypher"}},
		{"bitcoind without host", map[string]interface{}{"backend": "bitcoind"}},
		{"negative confirmations", map[string]interface{}{"min_confirmations": -1}},
		{"fee address wrong network", map[string]interface{}{"service_fee_address": "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"}},
		{"fee below dust", map[string]interface{}{"service_fee_address": testFeeAddress, "service_fee_sats": 100}},
		{"bad burn key", map[string]interface{}{"burn_key": "0404"}},
		{"zero attempts", map[string]interface{}{"retry_max_attempts": 0}},
		{"negative key attempts", map[string]interface{}{"max_key_attempts": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, s := getTestBackend(t, nil)
			resp := handle(t, b, s, logical.CreateOperation, "config", tt.data)
			if resp == nil || !resp.IsError() {
				t.Fatalf("create config with %v succeeded, want error", tt.data)
			}
			if stored, _ := getStoredConfig(context.Background(), s); stored != nil {
				t.Error("invalid config was stored")
			}
		})
	}
}

func TestConfigUpdateWithoutCreate(t *testing.T) {
	b, s := getTestBackend(t, nil)

	_, err := b.HandleRequest(context.Background(), &logical.Request{
		Operation: logical.UpdateOperation,
		Path:      "config",
		Storage:   s,
		Data:      map[string]interface{}{"network": "mainnet"},
	})
	if err == nil {
		t.Error("update without existing config succeeded")
	}
}

func TestConfigServiceFee(t *testing.T) {
	c := defaultConfig()
	if c.serviceFee() != nil {
		t.Error("default config has a service fee")
	}
	c.ServiceFeeAddress = testFeeAddress
	c.ServiceFeeSats = 1000
	fee := c.serviceFee()
	if fee == nil || fee.Address != testFeeAddress || fee.Value != 1000 {
		t.Errorf("serviceFee() = %+v", fee)
	}
}

package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Environment selects which exchange deployment the client talks to.
type Environment string

const (
	EnvTest Environment = "test"
	EnvProd Environment = "prod"
)

// Contracts holds the per-environment protocol constants. The typehash and
// domain separator are public configuration published by the exchange, not
// secrets; changing either invalidates every signature the client produces.
type Contracts struct {
	ActionTypehash  common.Hash
	DomainSeparator common.Hash

	TradeModuleAddress    common.Address
	TransferModuleAddress common.Address
	DepositModuleAddress  common.Address

	CashAddress            common.Address
	StandardManagerAddress common.Address

	// Per-market settlement asset addresses, keyed by "<CURRENCY>-<KIND>".
	AssetAddresses map[string]common.Address
}

type Config struct {
	Env       Environment
	BaseURL   string
	WSAddress string
	Contracts Contracts

	// PrivateKey is the hex-encoded account key. Loaded only from the
	// environment, never from defaults.
	PrivateKey   string
	Wallet       string
	SubaccountID int64

	// Session tuning.
	CallTimeout  time.Duration
	LoginTimeout time.Duration
	ReconnectMax int
	JournalPath  string
	StatusAddr   string
	CashDecimals int32
}

func addr(s string) common.Address { return common.HexToAddress(s) }

var contracts = map[Environment]Contracts{
	EnvTest: {
		ActionTypehash:         common.HexToHash("0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17"),
		DomainSeparator:        common.HexToHash("0x9bcf4dc06df5d8bf23af818d5716491b995020f377d3b7b64c29ed14e3dd1105"),
		TradeModuleAddress:     addr("0x87F2863866D85E3192a35A73b388BD625D83f2be"),
		TransferModuleAddress:  addr("0x0CFC1a4a90741aB242cAfaCD798b409E12e68926"),
		DepositModuleAddress:   addr("0x43223Db33AdA0575D2E100829543f8B04A37a1ec"),
		CashAddress:            addr("0x6caf294DaC985ff653d5aE75b4FF8E0A66025928"),
		StandardManagerAddress: addr("0x28bE681F7bEa6f465cbcA1D25A2125fe7533391C"),
		AssetAddresses: map[string]common.Address{
			"ETH-PERP":   addr("0x010e26422790C6Cb3872330980FAa7628FD20294"),
			"BTC-PERP":   addr("0xAFB6Bb95cd70D5367e2C39e9dbEb422B9815339D"),
			"ETH-OPTION": addr("0xBcB494059969DAaB460E0B5d4f5c2366aab79aa1"),
			"BTC-OPTION": addr("0xAeB81cbe6b19CeEB0dBE0d230CFFE35Bb40a13a7"),
		},
	},
	EnvProd: {
		ActionTypehash:         common.HexToHash("0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17"),
		DomainSeparator:        common.HexToHash("0xd96e5f90797da7ec8dc4e276260c7f3f87fedf68775fbe1ef116e996fc60441b"),
		TradeModuleAddress:     addr("0xB8D20c2B7a1Ad2EE33Bc50eF10876eD3035b5e7b"),
		TransferModuleAddress:  addr("0x01259207A40925b794C8ac320456F7F6c8FE2636"),
		DepositModuleAddress:   addr("0x9B3FE5E5a3bcEa5df4E08c41Ce89C4e3Ff01Ace3"),
		CashAddress:            addr("0x57B03BD81304CE6A1b399e470c423a98E340D99e"),
		StandardManagerAddress: addr("0x28c9ddF9A3B29c2E6a561c1BC520954e5A33de5D"),
		AssetAddresses: map[string]common.Address{
			"ETH-PERP":   addr("0xAf65752C4643E25C02F693f9D4FE19cF23a095E3"),
			"BTC-PERP":   addr("0xDBa83C0C654DB1cd914FA2710bA743e925B53086"),
			"ETH-OPTION": addr("0x4BB4C3CDc7562f08e9910A0C7D8bB7e108861eB4"),
			"BTC-OPTION": addr("0xd0711b9eBE84b778483709CDe62BacFDBAE13623"),
		},
	},
}

var endpoints = map[Environment][2]string{
	EnvTest: {"https://api-demo.lyra.finance", "wss://api-demo.lyra.finance/ws"},
	EnvProd: {"https://api.lyra.finance", "wss://api.lyra.finance/ws"},
}

// Default returns the test-environment configuration with no credentials.
func Default() Config {
	return ForEnvironment(EnvTest)
}

// ForEnvironment returns the configuration for a deployment.
func ForEnvironment(env Environment) Config {
	ep := endpoints[env]
	return Config{
		Env:          env,
		BaseURL:      ep[0],
		WSAddress:    ep[1],
		Contracts:    contracts[env],
		CallTimeout:  10 * time.Second,
		LoginTimeout: 10 * time.Second,
		ReconnectMax: 3,
		JournalPath:  "data/journal",
		StatusAddr:   ":8720",
		CashDecimals: 6,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	env := EnvTest
	if v := os.Getenv("LYRA_ENVIRONMENT"); v == string(EnvProd) {
		env = EnvProd
	}
	cfg := ForEnvironment(env)

	cfg.PrivateKey = os.Getenv("ETH_PRIVATE_KEY")
	if cfg.PrivateKey == "" {
		return cfg, fmt.Errorf("ETH_PRIVATE_KEY not set")
	}
	cfg.Wallet = os.Getenv("LYRA_WALLET")

	if v := os.Getenv("LYRA_SUBACCOUNT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("LYRA_SUBACCOUNT_ID: %w", err)
		}
		cfg.SubaccountID = id
	}

	if v := os.Getenv("LYRA_WS_ADDRESS"); v != "" {
		cfg.WSAddress = v
	}
	if v := os.Getenv("LYRA_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LYRA_CALL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("LYRA_RECONNECT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReconnectMax = n
		}
	}
	if v := os.Getenv("LYRA_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("LYRA_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}

	return cfg, nil
}

package counter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	chaicommon "github.com/onemorebsmith/chai-counter/src/common"
	"github.com/onemorebsmith/chai-counter/src/model"
)

const (
	RegistryAirtable = "airtable"
	RegistryPostgres = "postgres"
)

type CounterConfig struct {
	chaicommon.CommonConfig `yaml:",inline"`

	EthEndpoint string `yaml:"eth_endpoint"`
	Registry    string `yaml:"registry"`

	AirtableAPIKey string `yaml:"airtable_api_key"`
	IdentityBase   string `yaml:"airtable_base_chai"`
	CompletionBase string `yaml:"airtable_base_project"`

	ChaiPerP2P     uint64 `yaml:"chai_per_p2p"`
	ChaiPerProject uint64 `yaml:"chai_per_project"`

	// Period names the run, eg 2022-10-31; it is also the chat log folder
	Period      string `yaml:"period"`
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`

	TokenAddress    string `yaml:"token_address"`
	ChatLogDir      string `yaml:"chat_log_dir"`
	DistributionDir string `yaml:"distribution_dir"`
	AuditDir        string `yaml:"audit_dir"`

	CallTimeout          time.Duration `yaml:"call_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	NameLookupsPerSecond float64       `yaml:"name_lookups_per_second"`
	LockTTL              time.Duration `yaml:"lock_ttl"`

	envErrors map[string]error
}

func DefaultConfig() CounterConfig {
	return CounterConfig{
		Registry:             RegistryAirtable,
		TokenAddress:         model.DefaultTokenAddress,
		ChatLogDir:           "./discord_log",
		DistributionDir:      "./output_csv",
		AuditDir:             "./verbose_record",
		CallTimeout:          DefaultRetryPolicy.Timeout,
		RetryAttempts:        DefaultRetryPolicy.Attempts,
		NameLookupsPerSecond: 10,
		LockTTL:              30 * time.Minute,
	}
}

// ApplyEnv overrides settings from environment style keys. Values that don't
// parse are reported by Validate.
func (cfg *CounterConfig) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *uint64) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			cfg.envError(key, err)
			return
		}
		*dst = parsed
	}

	str("ALCHEMY_ENDPOINT", &cfg.EthEndpoint)
	str("AIRTABLE_API", &cfg.AirtableAPIKey)
	str("AIRTABLE_BASE_CHAI", &cfg.IdentityBase)
	str("AIRTABLE_BASE_PROJECT", &cfg.CompletionBase)
	num("CHAI_PER_P2P", &cfg.ChaiPerP2P)
	num("CHAI_PER_PROJECT", &cfg.ChaiPerProject)
	str("folderName", &cfg.Period)
	str("Af", &cfg.WindowStart)
	str("Bf", &cfg.WindowEnd)
	str("CHAI_REGISTRY", &cfg.Registry)
	str("CHAI_POSTGRES", &cfg.PostgresConfig)
	str("CHAI_REDIS", &cfg.RedisConfig)
	str("CHAI_TOKEN_ADDRESS", &cfg.TokenAddress)
	str("CHAI_PROM_PUSH", &cfg.PromPushURL)
	str("CHAI_LOG_FILE", &cfg.LogFile)
}

func (cfg *CounterConfig) envError(key string, err error) {
	if cfg.envErrors == nil {
		cfg.envErrors = map[string]error{}
	}
	cfg.envErrors[key] = err
}

// Validate reports every missing or unusable setting at once.
func (cfg *CounterConfig) Validate() error {
	cerr := &ConfigurationError{}
	for k, v := range cfg.envErrors {
		cerr.invalid(k, v)
	}
	required := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			cerr.Missing = append(cerr.Missing, key)
		}
	}
	required("ALCHEMY_ENDPOINT", cfg.EthEndpoint)
	required("folderName", cfg.Period)
	required("Af", cfg.WindowStart)
	if cfg.ChaiPerP2P == 0 && cfg.envErrors["CHAI_PER_P2P"] == nil {
		cerr.Missing = append(cerr.Missing, "CHAI_PER_P2P")
	}
	if cfg.ChaiPerProject == 0 && cfg.envErrors["CHAI_PER_PROJECT"] == nil {
		cerr.Missing = append(cerr.Missing, "CHAI_PER_PROJECT")
	}

	switch cfg.Registry {
	case RegistryAirtable:
		required("AIRTABLE_API", cfg.AirtableAPIKey)
		required("AIRTABLE_BASE_CHAI", cfg.IdentityBase)
		required("AIRTABLE_BASE_PROJECT", cfg.CompletionBase)
	case RegistryPostgres:
		required("CHAI_POSTGRES", cfg.PostgresConfig)
	default:
		cerr.invalid("CHAI_REGISTRY", fmt.Errorf("unknown registry %q", cfg.Registry))
	}

	if !common.IsHexAddress(cfg.TokenAddress) {
		cerr.invalid("CHAI_TOKEN_ADDRESS", fmt.Errorf("%q is not a hex address", cfg.TokenAddress))
	}
	if cfg.Period != "" {
		if _, err := model.PeriodMonth(cfg.Period); err != nil {
			cerr.invalid("folderName", err)
		} else if _, err := model.ParseTimestamp(cfg.Period); err != nil {
			cerr.invalid("folderName", err)
		}
	}
	if cfg.WindowStart != "" {
		if _, err := model.ParseTimestamp(cfg.WindowStart); err != nil {
			cerr.invalid("Af", err)
		}
	}
	if cfg.WindowEnd != "" {
		if _, err := model.ParseTimestamp(cfg.WindowEnd); err != nil {
			cerr.invalid("Bf", err)
		}
	}
	if cerr.empty() {
		return nil
	}
	return cerr
}

// RunWindow returns the completion window for a run at now. A period that has
// not finished yet runs from the configured start until now.
func (cfg *CounterConfig) RunWindow(now time.Time) (model.Window, error) {
	period, err := model.ParseTimestamp(cfg.Period)
	if err != nil {
		return model.Window{}, &ConfigurationError{Invalid: map[string]error{"folderName": err}}
	}
	start, err := model.ParseTimestamp(cfg.WindowStart)
	if err != nil {
		return model.Window{}, &ConfigurationError{Invalid: map[string]error{"Af": err}}
	}
	now = now.UTC()
	end := now
	if period.Before(now) {
		if cfg.WindowEnd == "" {
			return model.Window{}, &ConfigurationError{Missing: []string{"Bf"}}
		}
		end, err = model.ParseTimestamp(cfg.WindowEnd)
		if err != nil {
			return model.Window{}, &ConfigurationError{Invalid: map[string]error{"Bf": err}}
		}
	}
	if start.After(end) {
		return model.Window{}, &ConfigurationError{Invalid: map[string]error{
			"Af": fmt.Errorf("window start %s is after window end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		}}
	}
	return model.Window{Start: start, End: end}, nil
}

func (cfg *CounterConfig) RetryPolicy() RetryPolicy {
	policy := DefaultRetryPolicy
	if cfg.CallTimeout > 0 {
		policy.Timeout = cfg.CallTimeout
	}
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	return policy
}

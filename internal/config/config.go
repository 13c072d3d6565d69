package config

import (
	"errors"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	DefaultBranch      string        `json:"default-branch"`
	DevelopmentMode    bool          `json:"development-mode"`
	DevOps             DevOps        `json:"devops"`
	DryRun             bool          `json:"dry-run"`
	InsecureSkipVerify bool          `json:"insecure-skip-tls-verify"`
	IQ                 IQ            `json:"iq"`
	LogLevel           string        `json:"log-level"`
	MetricsBindAddress string        `json:"metrics-address"`
	Organizations      Organizations `json:"organizations"`
	StageID            string        `json:"stage-id"`
}

type DevOps struct {
	Organization string `json:"organization"`
	Token        string `json:"token"`
}

type IQ struct {
	Password string `json:"password"`
	URL      string `json:"url"`
	Username string `json:"username"`
}

type Organizations struct {
	DebugFile string `json:"debug-file"`
	File      string `json:"file"`
}

const (
	DefaultBranch          = "default-branch"
	DevelopmentMode        = "development-mode"
	DevOpsOrganization     = "devops.organization"
	DevOpsToken            = "devops.token"
	DryRun                 = "dry-run"
	InsecureSkipVerify     = "insecure-skip-tls-verify"
	IQPassword             = "iq.password"
	IQURL                  = "iq.url"
	IQUsername             = "iq.username"
	LogLevel               = "log-level"
	MetricsAddress         = "metrics-address"
	OrganizationsDebugFile = "organizations.debug-file"
	OrganizationsFile      = "organizations.file"
	StageID                = "stage-id"
)

func init() {
	viper.SetEnvPrefix("IQSYNC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Read configuration file from working directory and/or /etc.
	// File formats supported include JSON, TOML, YAML, HCL, envfile and Java properties config files
	viper.SetConfigName("iqsync")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc")

	flag.Bool(DevelopmentMode, false, "Toggle for development mode")
	flag.Bool(DryRun, false, "Log deletions without performing them")
	flag.Bool(InsecureSkipVerify, false, "Skip TLS certificate verification for outbound requests")
	flag.String(DefaultBranch, "main", "Branch evaluated by IQ Server")
	flag.String(DevOpsOrganization, "", "Azure DevOps organization name or base URL")
	flag.String(DevOpsToken, "", "Azure DevOps personal access token")
	flag.String(IQPassword, "", "IQ Server password")
	flag.String(IQURL, "", "IQ Server base URL")
	flag.String(IQUsername, "", "IQ Server username")
	flag.String(LogLevel, "info", "Which log level to output")
	flag.String(MetricsAddress, "", "Bind address for the metrics endpoint, empty to disable")
	flag.String(OrganizationsDebugFile, "config/debug-org.json", "Organization list file used in development mode")
	flag.String(OrganizationsFile, "config/org-azure.json", "Organization list file")
	flag.String(StageID, "source", "IQ Server pipeline stage evaluations are requested at")
}

func Load() (*Config, error) {
	var err error
	var cfg Config

	err = viper.ReadInConfig()
	if err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	flag.Parse()

	err = viper.BindPFlags(flag.CommandLine)
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&cfg, decoderHook)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decoderHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
	dc.ErrorUnused = false
}

// OrganizationsPath returns the organization list file for this run;
// development mode selects the debug file.
func (c *Config) OrganizationsPath() string {
	if c.DevelopmentMode {
		return c.Organizations.DebugFile
	}
	return c.Organizations.File
}

func Print(redacted []string) {
	ok := func(key string) bool {
		for _, forbiddenKey := range redacted {
			if forbiddenKey == key {
				return false
			}
		}
		return true
	}

	var keys sort.StringSlice = viper.AllKeys()
	keys.Sort()
	for _, key := range keys {
		if ok(key) {
			log.Printf("%s: %s", key, viper.GetString(key))
		} else {
			log.Printf("%s: ***REDACTED***", key)
		}
	}
}

func Validate(required []string) error {
	present := func(key string) bool {
		for _, requiredKey := range required {
			if requiredKey == key {
				return len(viper.GetString(requiredKey)) > 0
			}
		}
		return true
	}
	var keys sort.StringSlice = viper.AllKeys()
	errs := make([]string, 0)

	keys.Sort()
	for _, key := range keys {
		if !present(key) {
			errs = append(errs, key)
		}
	}

	for _, key := range errs {
		log.Printf("required key '%s' not configured", key)
	}
	if len(errs) > 0 {
		return errors.New("missing configuration values")
	}
	return nil
}

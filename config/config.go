package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/eventium/auth-service/pkg/kafka"
	"github.com/eventium/auth-service/pkg/logger"
	"github.com/eventium/auth-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"AUTH_HTTP_HOST"`
	Port         string        `yaml:"port" envconfig:"AUTH_HTTP_PORT"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ"`
	WriteTimeout time.Duration
}

type IdentityProviderHTTPServer struct {
	Host string `envconfig:"IDENTITY_PROVIDER_HTTP_HOST"`
	Port string `envconfig:"IDENTITY_PROVIDER_HTTP_PORT"`
}

// Auth carries the security-sensitive settings injected into the
// orchestrator at construction. No ambient/global lookup.
type Auth struct {
	JWTSecret       string `envconfig:"JWT_SECRET" json:"-"`
	SuperAdminEmail string `envconfig:"SUPERADMIN_EMAIL"`
}

type Config struct {
	Server           HTTPServer `yaml:"server"`
	Database         postgres.DB
	Kafka            kafka.Config
	Auth             Auth
	IdentityProvider IdentityProviderHTTPServer
	Log              logger.Log `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/missionMeteora/mandrill"
	"github.com/stripe/stripe-go"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func New(loc string) (*Config, error) {
	var c Config

	f, err := os.Open(loc)
	if err != nil {
		log.Println("Config error", err)
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	if c.CommissionRate == 0 {
		// Platform default fee
		c.CommissionRate = 0.10
	}

	if c.Stripe.Key != "" {
		stripe.Key = c.Stripe.Key
	}

	return &c, nil
}

type Config struct {
	Host string `json:"host"`
	Port string `json:"port"`

	Sandbox bool `json:"sandbox"`

	DBPath string `json:"dbPath"`
	DBName string `json:"dbName"`

	DashURL string `json:"dashUrl"` // Base link used in notification emails

	// Platform cut taken on final settlement, informational accounting only
	CommissionRate float64 `json:"commissionRate"`

	Stripe struct {
		Key string `json:"key"`
	} `json:"stripe"`

	Mandrill struct {
		APIKey    string `json:"apiKey"`
		SubUser   string `json:"subUser"`
		FromEmail string `json:"fromEmail"`
		FromName  string `json:"fromName"`
	} `json:"mandrill"`

	Bucket struct {
		User    string   `json:"user"`
		APIKey  string   `json:"apiKey"`
		Deal    string   `json:"deal"`
		Terms   string   `json:"terms"`
		Escrow  string   `json:"escrow"`
		Invoice string   `json:"invoice"`
		Audit   string   `json:"audit"`
		File    string   `json:"file"`
		All     []string `json:"all"`
	} `json:"bucket"`
}

func (c *Config) MailClient() *mandrill.Client {
	if c.Mandrill.APIKey == "" {
		return nil
	}
	return mandrill.New(c.Mandrill.APIKey, c.Mandrill.SubUser, c.Mandrill.FromEmail, c.Mandrill.FromName)
}

// AllBuckets returns every bucket name the db needs at startup, including
// the index bucket backing monotonic ids.
func (c *Config) AllBuckets() []string {
	if len(c.Bucket.All) != 0 {
		return c.Bucket.All
	}
	return []string{
		"index",
		c.Bucket.User,
		c.Bucket.APIKey,
		c.Bucket.Deal,
		c.Bucket.Terms,
		c.Bucket.Escrow,
		c.Bucket.Invoice,
		c.Bucket.Audit,
		c.Bucket.File,
	}
}

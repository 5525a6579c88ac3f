// Package shopper keeps named shopper identities and shipping addresses on
// disk so repeat purchases only need the product and the card.
package shopper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patrickjm/shopbot/internal/order"
)

// Shopper never carries payment data; Import rejects files that do.
type Shopper struct {
	Name           string    `json:"name" yaml:"name"`
	FirstName      string    `json:"first_name" yaml:"first_name"`
	LastName       string    `json:"last_name" yaml:"last_name"`
	Email          string    `json:"email" yaml:"email"`
	Phone          string    `json:"phone" yaml:"phone"`
	Address        string    `json:"address" yaml:"address"`
	City           string    `json:"city" yaml:"city"`
	State          string    `json:"state" yaml:"state"`
	PostalCode     string    `json:"postal_code" yaml:"postal_code"`
	Country        string    `json:"country,omitempty" yaml:"country"`
	BillingAddress string    `json:"billing_address,omitempty" yaml:"billing_address"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	LastUsed       time.Time `json:"last_used" yaml:"-"`
}

var (
	ErrNameRequired = errors.New("shopper name required")
	ErrInvalidName  = errors.New("invalid shopper name")
)

type Store struct {
	Root string
}

func (s Store) Dir(name string) string {
	return filepath.Join(s.Root, sanitizeName(name))
}

func (s Store) Path(name string) string {
	return filepath.Join(s.Dir(name), "shopper.json")
}

func (s Store) Load(name string) (Shopper, error) {
	name, err := cleanName(name)
	if err != nil {
		return Shopper{}, err
	}
	b, err := os.ReadFile(s.Path(name))
	if err != nil {
		return Shopper{}, err
	}
	var sh Shopper
	if err := json.Unmarshal(b, &sh); err != nil {
		return Shopper{}, err
	}
	return sh, nil
}

func (s Store) Save(sh Shopper) error {
	name, err := cleanName(sh.Name)
	if err != nil {
		return err
	}
	sh.Name = name
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now().UTC()
	}
	if err := os.MkdirAll(s.Dir(sh.Name), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sh, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(sh.Name), b, 0o600)
}

func (s Store) List() ([]Shopper, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	shoppers := make([]Shopper, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sh, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		shoppers = append(shoppers, sh)
	}
	sort.Slice(shoppers, func(i, j int) bool {
		return shoppers[i].Name < shoppers[j].Name
	})
	return shoppers, nil
}

func (s Store) Remove(name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(s.Path(name)); err != nil {
		return err
	}
	return os.RemoveAll(s.Dir(name))
}

// Touch records that the shopper seeded a purchase.
func (s Store) Touch(name string) (Shopper, error) {
	sh, err := s.Load(name)
	if err != nil {
		return Shopper{}, err
	}
	sh.LastUsed = time.Now().UTC()
	return sh, s.Save(sh)
}

// Import reads a YAML (or JSON) shopper file and saves it under name, or
// under the file's own name field when name is empty. Unknown keys, card
// fields included, are rejected.
func (s Store) Import(path, name string) (Shopper, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Shopper{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var sh Shopper
	if err := dec.Decode(&sh); err != nil {
		return Shopper{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if name != "" {
		sh.Name = name
	}
	if sh.Name, err = cleanName(sh.Name); err != nil {
		return Shopper{}, err
	}
	if existing, err := s.Load(sh.Name); err == nil {
		sh.CreatedAt = existing.CreatedAt
		sh.LastUsed = existing.LastUsed
	}
	if err := s.Save(sh); err != nil {
		return Shopper{}, err
	}
	return s.Load(sh.Name)
}

// Defaults maps the shopper onto collector parameter keys. Empty fields are
// left out so they never mask a caller's value.
func (sh Shopper) Defaults() map[string]string {
	all := map[string]string{
		"first_name":      sh.FirstName,
		"last_name":       sh.LastName,
		"email":           sh.Email,
		"phone":           sh.Phone,
		"address":         sh.Address,
		"city":            sh.City,
		"state":           sh.State,
		"postal_code":     sh.PostalCode,
		"country":         sh.Country,
		"billing_address": sh.BillingAddress,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// Shipping returns the shipping address with the default country applied.
func (sh Shopper) Shipping() order.Address {
	country := sh.Country
	if country == "" {
		country = order.DefaultCountry
	}
	return order.Address{Street: sh.Address, City: sh.City, State: sh.State, PostalCode: sh.PostalCode, Country: country}
}

// cleanName normalizes name and rejects anything that is not a single path
// element below Root.
func cleanName(name string) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

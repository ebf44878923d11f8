// Package seed loads the club's courts and members from a YAML file.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

// DefaultRegion is used for phone numbers written without a country prefix.
const DefaultRegion = "ES"

type Court struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	MatchMinutes  int    `yaml:"match_minutes"`
	AllowsSingles bool   `yaml:"allows_singles"`
}

type Member struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Phone     string `yaml:"phone"`
	Kind      string `yaml:"kind"`
}

type File struct {
	Region  string   `yaml:"region"`
	Courts  []Court  `yaml:"courts"`
	Members []Member `yaml:"members"`
}

type Summary struct {
	Courts  int
	Members int
}

// Parse decodes a seed file and converts it into insert parameters, normalizing phone numbers.
func Parse(data []byte) ([]db.CreateCourtParams, []db.CreateMemberParams, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parse seed file: %w", err)
	}
	region := strings.ToUpper(strings.TrimSpace(file.Region))
	if region == "" {
		region = DefaultRegion
	}

	courts := make([]db.CreateCourtParams, 0, len(file.Courts))
	for i, c := range file.Courts {
		kind, err := models.ParseCourtKind(c.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("court %d: %w", i+1, err)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, nil, fmt.Errorf("court %d: name is required", i+1)
		}
		if c.MatchMinutes <= 0 {
			return nil, nil, fmt.Errorf("court %q: match_minutes must be positive", c.Name)
		}
		courts = append(courts, db.CreateCourtParams{
			Name:          strings.TrimSpace(c.Name),
			Kind:          kind,
			MatchMinutes:  c.MatchMinutes,
			AllowsSingles: c.AllowsSingles,
		})
	}

	members := make([]db.CreateMemberParams, 0, len(file.Members))
	for i, m := range file.Members {
		if strings.TrimSpace(m.FirstName) == "" || strings.TrimSpace(m.LastName) == "" {
			return nil, nil, fmt.Errorf("member %d: first and last name are required", i+1)
		}
		kind, err := models.ParseMembershipKind(m.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("member %d: %w", i+1, err)
		}
		phone, err := NormalizePhone(m.Phone, region)
		if err != nil {
			return nil, nil, fmt.Errorf("member %s %s: %w", m.FirstName, m.LastName, err)
		}
		members = append(members, db.CreateMemberParams{
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Email:     strings.ToLower(strings.TrimSpace(m.Email)),
			Phone:     phone,
			Kind:      kind,
		})
	}
	return courts, members, nil
}

// NormalizePhone formats raw as E.164. An empty input stays empty.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("invalid phone %q", raw)
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// Load inserts the parsed courts and members in a single transaction.
func Load(ctx context.Context, database *db.DB, data []byte) (Summary, error) {
	courts, members, err := Parse(data)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	err = database.RunInTx(ctx, func(txdb *db.DB) error {
		summary = Summary{}
		for _, c := range courts {
			court, err := txdb.Queries.CreateCourt(ctx, c)
			if err != nil {
				return fmt.Errorf("insert court %q: %w", c.Name, err)
			}
			log.Debug().Int64("court_id", court.ID).Str("name", court.Name).Msg("Seeded court")
			summary.Courts++
		}
		for _, m := range members {
			member, err := txdb.Queries.CreateMember(ctx, m)
			if err != nil {
				return fmt.Errorf("insert member %s %s: %w", m.FirstName, m.LastName, err)
			}
			log.Debug().Int64("member_id", member.ID).Str("name", member.FullName()).Msg("Seeded member")
			summary.Members++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

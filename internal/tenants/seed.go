package tenants

import (
	"context"
	"fmt"
	"os"

	"leadflow_backend/platform/logger"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a tenant bootstrap file.
type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	Name     string  `yaml:"name"`
	Slug     string  `yaml:"slug"`
	Domain   string  `yaml:"domain"`
	IsActive *bool   `yaml:"isActive"`
	Config   *Config `yaml:"config"`
}

// Seed upserts tenants from a YAML file. Intended for development and test
// environments; production tenants are managed elsewhere.
func Seed(ctx context.Context, repo *Repository, path string, log *logger.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tenant seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse tenant seed file: %w", err)
	}

	for _, st := range file.Tenants {
		if st.Slug == "" {
			return fmt.Errorf("tenant seed entry %q has no slug", st.Name)
		}

		tenant := Tenant{
			Name:     st.Name,
			Slug:     st.Slug,
			Domain:   st.Domain,
			IsActive: st.IsActive == nil || *st.IsActive,
			Config:   DefaultConfig(),
		}
		if st.Config != nil {
			tenant.Config = *st.Config
		}

		id, err := repo.Upsert(ctx, tenant)
		if err != nil {
			return fmt.Errorf("seed tenant %q: %w", st.Slug, err)
		}
		log.Info("tenant seeded", "slug", st.Slug, "tenant_id", id.String())
	}

	return nil
}

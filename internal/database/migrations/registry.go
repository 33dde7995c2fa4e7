package migrations

import (
	"gorm.io/gorm"

	"github.com/chanarr/chanarr/internal/models"
)

// schemaModels lists every persisted model in dependency order, so
// AutoMigrate creates referenced tables before their join tables.
var schemaModels = []any{
	&models.StreamSource{},
	&models.Channel{},
	&models.EpgSource{},
	&models.EpgChannel{},
	&models.EpgProgram{},
	&models.Filter{},
	&models.DataMappingRule{},
	&models.Proxy{},
	&models.ProxySource{},
	&models.ProxyEpgSource{},
	&models.ProxyFilter{},
	&models.ProxyMappingRule{},
}

// schemaTables mirrors schemaModels in reverse dependency order for
// rollback.
var schemaTables = []string{
	"proxy_mapping_rules",
	"proxy_filters",
	"proxy_epg_sources",
	"proxy_sources",
	"proxies",
	"data_mapping_rules",
	"filters",
	"epg_programs",
	"epg_channels",
	"epg_sources",
	"channels",
	"stream_sources",
}

// AllMigrations returns the full registry in order:
// - 001: schema creation via GORM AutoMigrate
// - 002: system data (default filters and mapping rules)
func AllMigrations() []Migration {
	return []Migration{
		{
			Version:     "001",
			Description: "Create all database tables",
			Up: func(tx *gorm.DB) error {
				return tx.AutoMigrate(schemaModels...)
			},
			Down: func(tx *gorm.DB) error {
				for _, table := range schemaTables {
					if !tx.Migrator().HasTable(table) {
						continue
					}
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     "002",
			Description: "Insert default filters and mapping rules",
			Up:          seedSystemData,
			Down: func(tx *gorm.DB) error {
				if err := tx.Where("is_system = ?", true).Delete(&models.DataMappingRule{}).Error; err != nil {
					return err
				}
				return tx.Where("is_system = ?", true).Delete(&models.Filter{}).Error
			},
		},
	}
}

// seedSystemData inserts the built-in filters and mapping rules shipped
// with every install.
func seedSystemData(tx *gorm.DB) error {
	filters := []models.Filter{
		{
			Name:        "Valid Stream URLs",
			Description: "Keeps only channels with an HTTP(S) stream URL",
			SourceType:  models.FilterSourceTypeStream,
			Expression:  `stream_url starts_with "http"`,
			IsSystem:    true,
		},
		{
			Name:        "Exclude Adult Content",
			Description: "Drops channels with adult content keywords in name or group",
			SourceType:  models.FilterSourceTypeStream,
			Expression:  `group_title contains "adult" OR group_title contains "xxx" OR channel_name contains "adult" OR channel_name contains "xxx"`,
			IsInverse:   true,
			IsSystem:    true,
		},
	}
	for i := range filters {
		if err := tx.Create(&filters[i]).Error; err != nil {
			return err
		}
	}

	rules := []models.DataMappingRule{
		{
			Name:        "Timeshift Detection",
			Description: "Detects timeshift channels (+1, +24, etc.) and sets tvg_shift using regex capture groups.",
			SourceType:  models.DataMappingRuleSourceTypeStream,
			Expression:  `channel_name matches ".*[ ](?:\\+([0-9]{1,2})|(-[0-9]{1,2}))([hH]?)(?:$|[ ]).*" AND channel_name not matches ".*(?:start:|stop:|24[-/]7).*" AND tvg_id matches "^.+$" SET tvg_shift = "$1$2"`,
			SortOrder:   1,
			IsSystem:    true,
		},
	}
	for i := range rules {
		if err := tx.Create(&rules[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

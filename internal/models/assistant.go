package models

import "time"

// ModelType selects the LLM vendor an assistant dispatches to.
type ModelType string

const (
	// ModelTypeCoze routes requests to a Coze bot.
	ModelTypeCoze ModelType = "coze"
	// ModelTypeDeepSeek routes requests to the DeepSeek chat completions API.
	ModelTypeDeepSeek ModelType = "deepseek"
)

// Valid reports whether t is a supported vendor.
func (t ModelType) Valid() bool {
	return t == ModelTypeCoze || t == ModelTypeDeepSeek
}

// AssistantConfig holds the vendor binding of an assistant. Empty credentials fall
// back to the server-wide provider defaults.
type AssistantConfig struct {
	ModelType    ModelType `gorm:"type:varchar(32);not null;default:'coze'"` // Vendor selector.
	APIKey       string    `gorm:"type:text"`                                // Vendor API key override.
	APIURL       string    `gorm:"type:text"`                                // Vendor endpoint override.
	BotID        string    `gorm:"type:text"`                                // Coze bot identifier.
	SystemPrompt string    `gorm:"type:text"`                                // System prompt sent to chat-completion vendors.
	Model        string    `gorm:"type:text"`                                // Vendor model name override.
	Temperature  float64   `gorm:"not null;default:0"`                       // Sampling temperature.
	MaxTokens    int       `gorm:"not null;default:0"`                       // Completion token cap, 0 means vendor default.
	Extra        JSONValue `gorm:"default:null"`                             // Free-form vendor options.
}

// Assistant is an admin-configured AI persona bound to one provider and a flat cost.
type Assistant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key         string `gorm:"type:varchar(128);not null;uniqueIndex"` // Public identifier used in URLs.
	Name        string `gorm:"type:text;not null"`                     // Display name.
	Description string `gorm:"type:text"`                              // Display description.
	Avatar      string `gorm:"type:text"`                              // Avatar image URL.
	Category    string `gorm:"type:varchar(64);index"`                 // Grouping label for the catalogue.
	SortOrder   int    `gorm:"not null;default:0;index"`               // Ascending catalogue order.

	Config AssistantConfig `gorm:"embedded;embeddedPrefix:config_"` // Vendor binding.

	PointsCost int64 `gorm:"not null;default:0"` // Points charged per successful call.
	IsActive   bool  `gorm:"not null;index"`     // Inactive assistants reject dispatch.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

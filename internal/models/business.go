package models

import "time"

type Business struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Address   string    `yaml:"address" json:"address"`
	Category  string    `yaml:"category" json:"category"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// PlaceQuery is the identifying query sent to the places source.
func (b *Business) PlaceQuery() string {
	if b.Address == "" {
		return b.Name
	}
	return b.Name + ", " + b.Address
}

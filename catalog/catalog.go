// Package catalog provides an in-process restaurant catalog and the bundled sample data.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"whattoeat/models"
)

//go:embed sample.json
var sampleJSON []byte

// Sample returns the bundled Bangkok demo catalog.
func Sample() []models.Restaurant {
	restaurants, err := Decode(sampleJSON)
	if err != nil {
		panic(fmt.Sprintf("catalog: bundled sample is invalid: %v", err))
	}
	return restaurants
}

// LoadFile reads a JSON array of restaurants.
func LoadFile(path string) ([]models.Restaurant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	restaurants, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return restaurants, nil
}

// Decode parses and validates a JSON array of restaurants.
func Decode(data []byte) ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	if err := json.Unmarshal(data, &restaurants); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	for i := range restaurants {
		if err := restaurants[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		restaurants[i].Tags = models.Tags(models.NormalizeTags(restaurants[i].Tags))
	}
	return restaurants, nil
}

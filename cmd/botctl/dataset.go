package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/botkit/internal/domain"
)

// dataset is the YAML form of a training request.
type dataset struct {
	Language string          `yaml:"language"`
	Seed     int64           `yaml:"seed"`
	Password string          `yaml:"password,omitempty"`
	Entities []domain.Entity `yaml:"entities,omitempty"`
	Topics   []domain.Topic  `yaml:"topics"`
}

// loadDataset reads a YAML dataset file. A password flag overrides the file.
func loadDataset(path, passwordOverride string) (*domain.TrainInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return parseDataset(data, passwordOverride)
}

func parseDataset(data []byte, passwordOverride string) (*domain.TrainInput, error) {
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	input := &domain.TrainInput{
		Language: ds.Language,
		Seed:     ds.Seed,
		Password: ds.Password,
		Entities: ds.Entities,
		Topics:   ds.Topics,
	}
	if passwordOverride != "" {
		input.Password = passwordOverride
	}

	input.Normalize()
	if err := input.Validate(nil); err != nil {
		return nil, err
	}
	return input, nil
}

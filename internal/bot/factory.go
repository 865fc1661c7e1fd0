package bot

import (
	"fmt"
	"strings"
)

// NewBrain creates a new AI brain based on the specified level.
func NewBrain(level BotLevel) (Brain, error) {
	switch level {
	case BotLevelFirst:
		return FirstLegal{}, nil
	case BotLevelHeavy:
		return HeavyFirst{}, nil
	default:
		return nil, fmt.Errorf("unknown bot level: %d", level)
	}
}

// ParseLevel maps a config name to a level. An empty name is BotLevelFirst.
func ParseLevel(name string) (BotLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return BotLevelFirst, nil
	case "heavy":
		return BotLevelHeavy, nil
	}
	return 0, fmt.Errorf("unknown bot level: %q", name)
}

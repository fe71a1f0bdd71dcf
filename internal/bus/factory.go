package bus

import (
	"fmt"
	"strings"

	"github.com/campusqa/campusqa/internal/config"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "campusqa"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "campusqa-bus",
			Version:       cfg.KafkaVersion,
		}, log)

	default:
		return nil, fmt.Errorf("unknown bus type: %s", cfg.Type)
	}
}

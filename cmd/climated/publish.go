package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/climate-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/climate-core/internal/reading"
	"github.com/nerrad567/climate-core/internal/topic"
)

// newPublishCmd sends one reading to the broker on the topic the daemon
// subscribes to. It exists for commissioning and smoke tests.
func newPublishCmd(configPath func() string) *cobra.Command {
	var (
		deviceUID   string
		temperature float64
		humidity    float64
		ts          string
		values      []string
		retained    bool
	)

	cmd := &cobra.Command{
		Use:     "publish",
		Short:   "Publish a test reading over MQTT",
		Example: `  climated publish --device temp001 --temperature 21.5 --humidity 40 --set homeId=house-1`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			decoder, err := topic.Compile(cfg.Ingest.TopicPattern)
			if err != nil {
				return fmt.Errorf("compiling topic pattern: %w", err)
			}

			placeholders, err := parseAssignments(values)
			if err != nil {
				return err
			}
			placeholders[cfg.Ingest.DevicePlaceholder] = deviceUID
			name, err := decoder.Render(placeholders)
			if err != nil {
				return err
			}

			at := time.Now().UTC()
			if ts != "" {
				if at, err = time.Parse(time.RFC3339Nano, ts); err != nil {
					return fmt.Errorf("--ts must be RFC 3339: %w", err)
				}
			}
			payload, err := json.Marshal(reading.Normalized{
				Temperature: temperature,
				Humidity:    humidity,
				Timestamp:   at,
			})
			if err != nil {
				return err
			}

			mqttCfg := cfg.MQTT
			mqttCfg.Broker.ClientID += "-publish"
			client, err := mqtt.Connect(mqttCfg)
			if err != nil {
				return fmt.Errorf("connecting to MQTT: %w", err)
			}
			defer client.Close()

			if err := client.Publish(name, payload, byte(cfg.MQTT.QoS), retained); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, payload)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceUID, "device", "", "device identifier (required)")
	cmd.Flags().Float64Var(&temperature, "temperature", 21.0, "temperature in °C")
	cmd.Flags().Float64Var(&humidity, "humidity", 45.0, "relative humidity in %")
	cmd.Flags().StringVar(&ts, "ts", "", "reading time, RFC 3339 (default now)")
	cmd.Flags().StringArrayVar(&values, "set", nil, "other topic placeholder as name=value (repeatable)")
	cmd.Flags().BoolVar(&retained, "retain", false, "publish as a retained message")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

// parseAssignments turns name=value pairs into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs)+1)
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", p)
		}
		out[name] = value
	}
	return out, nil
}

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema is the structural contract for the configuration file.
// Semantic rules (name references, mapping precedence conflicts, time
// expressions) are checked afterwards in validate().
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ShellyDevices", "Schedules", "LightingControl"],
  "properties": {
    "General": {
      "type": ["object", "null"],
      "properties": {
        "AppName": {"type": ["string", "null"]},
        "CheckInterval": {"type": ["string", "null"]},
        "ShutdownTimeout": {"type": ["string", "null"]},
        "WebsiteBaseURL": {"type": ["string", "null"]},
        "WebsiteAccessKey": {"type": ["string", "null"]},
        "WebsiteTimeout": {"type": ["string", "null"]}
      }
    },
    "Location": {
      "type": ["object", "null"],
      "properties": {
        "Name": {"type": ["string", "null"]},
        "Timezone": {"type": ["string", "null"]},
        "Latitude": {"type": ["number", "null"]},
        "Longitude": {"type": ["number", "null"]},
        "GoogleMapsURL": {"type": ["string", "null"]}
      }
    },
    "ShellyDevices": {
      "type": "object",
      "required": ["Devices"],
      "properties": {
        "ResponseTimeout": {"type": ["string", "null"]},
        "RetryCount": {"type": ["integer", "null"], "minimum": 0, "maximum": 10},
        "RetryDelay": {"type": ["string", "null"]},
        "Devices": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["Model"],
            "properties": {
              "Name": {"type": ["string", "null"]},
              "Model": {"type": "string"},
              "Hostname": {"type": ["string", "null"]},
              "Port": {"type": ["integer", "null"]},
              "Simulate": {"type": ["boolean", "null"]},
              "Inputs": {
                "type": ["array", "null"],
                "items": {
                  "type": "object",
                  "properties": {
                    "Name": {"type": ["string", "null"]},
                    "ID": {"type": ["integer", "null"]}
                  }
                }
              },
              "Outputs": {
                "type": ["array", "null"],
                "items": {
                  "type": "object",
                  "properties": {
                    "Name": {"type": ["string", "null"]},
                    "Group": {"type": ["string", "null"]},
                    "ID": {"type": ["integer", "null"]}
                  }
                }
              }
            }
          }
        }
      }
    },
    "Schedules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["Name", "Events"],
        "properties": {
          "Name": {"type": "string"},
          "Events": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["TurnOn", "TurnOff"],
              "properties": {
                "TurnOn": {"type": "string"},
                "TurnOff": {"type": "string"},
                "RandomOffset": {"type": ["integer", "null"], "minimum": 0},
                "DaysOfWeek": {"type": ["string", "null"]},
                "DatesOff": {
                  "type": ["array", "null"],
                  "items": {
                    "type": "object",
                    "required": ["StartDate", "EndDate"],
                    "properties": {
                      "StartDate": {"type": "string"},
                      "EndDate": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    },
    "LightingControl": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["Type", "Schedule"],
        "properties": {
          "Type": {"type": "string"},
          "Target": {"type": ["string", "null"]},
          "Schedule": {"type": "string"}
        }
      }
    },
    "InputControls": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["Type", "Input"],
        "properties": {
          "Type": {"type": "string"},
          "Target": {"type": ["string", "null"]},
          "Input": {"type": "string"}
        }
      }
    },
    "Files": {
      "type": ["object", "null"],
      "properties": {
        "StateDatabase": {"type": ["string", "null"]},
        "MaxDaysSwitchChangeHistory": {"type": ["integer", "null"], "minimum": 1, "maximum": 365},
        "ConsoleVerbosity": {"type": ["string", "null"], "enum": ["error", "warning", "summary", "detailed", "debug", null]},
        "LogColors": {"type": ["boolean", "null"]},
        "LogJSON": {"type": ["boolean", "null"]}
      }
    },
    "Email": {
      "type": ["object", "null"],
      "properties": {
        "EnableEmail": {"type": ["boolean", "null"]},
        "SendEmailsTo": {"type": ["string", "null"]},
        "SMTPServer": {"type": ["string", "null"]},
        "SMTPPort": {"type": ["integer", "null"], "minimum": 25, "maximum": 10000},
        "SMTPUsername": {"type": ["string", "null"]},
        "SMTPPassword": {"type": ["string", "null"]},
        "SubjectPrefix": {"type": ["string", "null"]}
      }
    },
    "HeartbeatMonitor": {
      "type": ["object", "null"],
      "properties": {
        "WebsiteURL": {"type": ["string", "null"]},
        "HeartbeatTimeout": {"type": ["string", "null"]}
      }
    },
    "Webhook": {
      "type": ["object", "null"],
      "properties": {
        "Enabled": {"type": ["boolean", "null"]},
        "Host": {"type": ["string", "null"]},
        "Port": {"type": ["integer", "null"]},
        "Path": {"type": ["string", "null"]}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("config.schema.json", configSchema)

// validateSchema checks raw YAML bytes against the structural schema.
func validateSchema(data []byte) error {
	// Decode YAML, then round-trip through JSON so the schema validator sees
	// plain JSON types.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to normalize document: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return fmt.Errorf("failed to normalize document: %w", err)
	}

	if err := compiledSchema.Validate(jsonDoc); err != nil {
		return err
	}
	return nil
}

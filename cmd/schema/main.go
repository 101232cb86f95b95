// Command schema emits the JSON schema for createRoom configuration, used to
// validate the payloads display clients author.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"partyline/server/internal/game/quiz"
	"partyline/server/internal/game/race"
	"partyline/server/internal/game/shooter"
	"partyline/server/internal/game/towerdef"
	"partyline/server/internal/room"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// roomConfigDoc is the document shape clients send inside createRoom. The
// per-game sections are flattened into the same object on the wire, so the
// schema lists them all as optional.
type roomConfigDoc struct {
	Room         room.Config     `json:"room"`
	Shooter      shooter.Config  `json:"shooter,omitempty"`
	Race         race.Config     `json:"race,omitempty"`
	Quiz         quiz.Config     `json:"quiz,omitempty"`
	TowerDefense towerdef.Config `json:"towerDefense,omitempty"`
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(roomConfigDoc))
	schema.Title = "Partyline Room Configuration"
	schema.Description = "Validates the config section of createRoom messages"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}

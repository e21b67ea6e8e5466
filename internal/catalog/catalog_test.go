package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"labengine/internal/model"
)

func makeEnv(id string) model.LabEnvironment {
	return model.LabEnvironment{
		ID:   id,
		Name: "Test Environment",
		Tasks: []model.LabTask{
			{ID: "t2", Order: 2, Points: 20, Verifier: model.VerifierSpec{Kind: model.VerifierExact, Value: "b"}},
			{ID: "t1", Order: 1, Points: 10, Verifier: model.VerifierSpec{Kind: model.VerifierExact, Value: "a"}},
		},
	}
}

func TestNewStaticSortsTasksByOrder(t *testing.T) {
	c, err := NewStatic([]model.LabEnvironment{makeEnv("e1")})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	env, err := c.Environment("e1")
	if err != nil {
		t.Fatalf("Environment: %v", err)
	}
	if env.Tasks[0].ID != "t1" || env.Tasks[1].ID != "t2" {
		t.Errorf("tasks not sorted by order: %v, %v", env.Tasks[0].ID, env.Tasks[1].ID)
	}
	if env.Tasks[0].EnvironmentID != "e1" {
		t.Errorf("EnvironmentID = %q, want e1", env.Tasks[0].EnvironmentID)
	}
}

func TestEnvironmentUnknown(t *testing.T) {
	c, err := NewStatic([]model.LabEnvironment{makeEnv("e1")})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	_, err = c.Environment("nope")
	if !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("Environment error = %v, want ErrUnknownEnvironment", err)
	}
}

func TestNewStaticRejectsDuplicateOrder(t *testing.T) {
	env := makeEnv("e1")
	env.Tasks[1].Order = 2 // same as t2

	_, err := NewStatic([]model.LabEnvironment{env})
	if err == nil || !strings.Contains(err.Error(), "order") {
		t.Errorf("NewStatic error = %v, want duplicate order error", err)
	}
}

func TestNewStaticRejectsNegativePoints(t *testing.T) {
	env := makeEnv("e1")
	env.Tasks[0].Points = -5

	_, err := NewStatic([]model.LabEnvironment{env})
	if err == nil || !strings.Contains(err.Error(), "points") {
		t.Errorf("NewStatic error = %v, want negative points error", err)
	}
}

func TestNewStaticRejectsMissingVerifier(t *testing.T) {
	env := makeEnv("e1")
	env.Tasks[0].Verifier.Kind = ""

	_, err := NewStatic([]model.LabEnvironment{env})
	if err == nil || !strings.Contains(err.Error(), "verifier") {
		t.Errorf("NewStatic error = %v, want missing verifier error", err)
	}
}

func TestEnvironmentsSortedByID(t *testing.T) {
	c, err := NewStatic([]model.LabEnvironment{makeEnv("e2"), makeEnv("e1")})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	envs := c.Environments()
	if len(envs) != 2 || envs[0].ID != "e1" || envs[1].ID != "e2" {
		t.Errorf("Environments() order = %v", envs)
	}
}

func TestLoadFile(t *testing.T) {
	doc := `{
		"environments": [
			{
				"id": "linux-basics",
				"name": "Linux Basics",
				"tasks": [
					{"id": "whoami", "order": 1, "title": "Find your user", "points": 10,
					 "verifier": {"kind": "exact", "value": "student"}},
					{"id": "kernel", "order": 2, "title": "Kernel version", "points": 20,
					 "verifier": {"kind": "regexp", "value": "^6\\..*$"}}
				]
			}
		]
	}`
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	env, err := c.Environment("linux-basics")
	if err != nil {
		t.Fatalf("Environment: %v", err)
	}
	if len(env.Tasks) != 2 {
		t.Fatalf("task count = %d, want 2", len(env.Tasks))
	}
	if env.Tasks[1].Verifier.Kind != model.VerifierRegexp {
		t.Errorf("verifier kind = %q, want regexp", env.Tasks[1].Verifier.Kind)
	}
	if env.TotalPoints() != 30 {
		t.Errorf("TotalPoints = %d, want 30", env.TotalPoints())
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("LoadFile on missing file should fail")
	}
}

package model

// Verifier kind constants.
const (
	VerifierExact    = "exact"
	VerifierRegexp   = "regexp"
	VerifierExternal = "external"
)

// VerifierSpec describes how a submitted solution is checked. Value holds the
// expected text, the pattern, or the external check reference depending on
// Kind; Message is the human-readable hint returned on a wrong answer.
type VerifierSpec struct {
	Kind    string `json:"kind"`
	Value   string `json:"value"`
	Message string `json:"message,omitempty"`
}

// LabTask is one step of a lab environment. Order is unique per environment
// and defines the default progression.
type LabTask struct {
	ID            string       `json:"id"`
	EnvironmentID string       `json:"environment_id"`
	Order         int          `json:"order"`
	Title         string       `json:"title"`
	Points        int          `json:"points"`
	HintText      string       `json:"hint_text,omitempty"`
	Verifier      VerifierSpec `json:"verifier"`
	SolutionText  string       `json:"solution_text,omitempty"`
}

// LabEnvironment is the reusable template a lab instance is created from.
// Immutable from the engine's perspective; owned by the catalog. Tasks are
// kept sorted by Order.
type LabEnvironment struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Tasks []LabTask `json:"tasks"`
}

// Task returns the task with the given id, or nil if the environment has no
// such task.
func (e *LabEnvironment) Task(taskID string) *LabTask {
	for i := range e.Tasks {
		if e.Tasks[i].ID == taskID {
			return &e.Tasks[i]
		}
	}
	return nil
}

// TotalPoints returns the sum of points across the environment's tasks.
func (e *LabEnvironment) TotalPoints() int {
	total := 0
	for i := range e.Tasks {
		total += e.Tasks[i].Points
	}
	return total
}

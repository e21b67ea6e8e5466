package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"labengine/internal/engine"
	"labengine/internal/model"
	"labengine/internal/verify"
)

func submitSolution(t *testing.T, ts *httptest.Server, instanceID, taskID, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(
		ts.URL+"/v1/instances/"+instanceID+"/tasks/"+taskID+"/verify",
		"application/json",
		bytes.NewBufferString(body),
	)
	if err != nil {
		t.Fatalf("POST verify: %v", err)
	}
	return resp
}

func TestVerifyTaskScenario(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	inst := startInstance(t, ts, "u1", "e1")
	waitForState(t, env.store, inst.ID, model.StateRunning, 5*time.Second)

	// Wrong answer is a 200 with a negative outcome, never an error status.
	resp := submitSolution(t, ts, inst.ID, "t1", `{"solution":"root"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("wrong answer status = %d, want 200", resp.StatusCode)
	}
	result := decodeJSON[engine.VerificationResult](t, resp)
	resp.Body.Close()
	if result.Outcome != verify.OutcomeWrong || result.Completed {
		t.Errorf("result = %+v, want wrong outcome", result)
	}

	// Correct answer completes and scores.
	resp = submitSolution(t, ts, inst.ID, "t1", `{"solution":"student"}`)
	result = decodeJSON[engine.VerificationResult](t, resp)
	resp.Body.Close()
	if result.Outcome != verify.OutcomeSuccess || result.Score != 10 {
		t.Errorf("result = %+v, want success with score 10", result)
	}

	// Resubmission is a 409 conflict.
	resp = submitSolution(t, ts, inst.ID, "t1", `{"solution":"student"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resubmit status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Progress reflects the completion.
	progResp, err := http.Get(ts.URL + "/v1/instances/" + inst.ID + "/progress")
	if err != nil {
		t.Fatalf("GET progress: %v", err)
	}
	progress := decodeJSON[engine.Progress](t, progResp)
	progResp.Body.Close()
	if progress.CompletedCount != 1 || progress.TotalCount != 2 ||
		progress.Percentage != 50 || progress.TotalScore != 10 {
		t.Errorf("progress = %+v, want {1 2 50 10}", progress)
	}
}

func TestVerifyTaskValidation(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	inst := startInstance(t, ts, "u1", "e1")
	waitForState(t, env.store, inst.ID, model.StateRunning, 5*time.Second)

	resp := submitSolution(t, ts, inst.ID, "t1", "not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = submitSolution(t, ts, inst.ID, "t1", `{"solution":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty solution status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = submitSolution(t, ts, inst.ID, "ghost", `{"solution":"x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestVerifyTaskWhileNotRunning(t *testing.T) {
	env := newTestServer(t)
	env.prov.ProvisionDelay = time.Minute
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	inst := startInstance(t, ts, "u1", "e1")

	resp := submitSolution(t, ts, inst.ID, "t1", `{"solution":"student"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409 while provisioning", resp.StatusCode)
	}
}

func TestNextTaskEndpoint(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	inst := startInstance(t, ts, "u1", "e1")
	waitForState(t, env.store, inst.ID, model.StateRunning, 5*time.Second)

	resp, err := http.Get(ts.URL + "/v1/instances/" + inst.ID + "/next-task")
	if err != nil {
		t.Fatalf("GET next-task: %v", err)
	}
	body := decodeJSON[nextTaskResponse](t, resp)
	resp.Body.Close()
	if body.Task == nil || body.Task.ID != "t1" {
		t.Errorf("next task = %+v, want t1", body.Task)
	}

	vr := submitSolution(t, ts, inst.ID, "t1", `{"solution":"student"}`)
	vr.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/instances/" + inst.ID + "/next-task")
	if err != nil {
		t.Fatalf("GET next-task: %v", err)
	}
	body = decodeJSON[nextTaskResponse](t, resp)
	resp.Body.Close()
	if body.Task == nil || body.Task.ID != "t2" {
		t.Errorf("next task = %+v, want t2", body.Task)
	}
}

func TestListTasksDisclosure(t *testing.T) {
	env := newTestServer(t)
	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	inst := startInstance(t, ts, "u1", "e1")
	waitForState(t, env.store, inst.ID, model.StateRunning, 5*time.Second)

	resp, err := http.Get(ts.URL + "/v1/instances/" + inst.ID + "/tasks")
	if err != nil {
		t.Fatalf("GET tasks: %v", err)
	}
	body := decodeJSON[map[string][]engine.TaskView](t, resp)
	resp.Body.Close()
	tasks := body["tasks"]
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].SolutionText != "" {
		t.Error("solution disclosed before completion")
	}
}

package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowAction(t *testing.T) {
	t.Run("literal flow id", func(t *testing.T) {
		a := ParseFlowAction("my-flow-123")
		assert.Equal(t, "my-flow-123", a.FlowID)
		assert.Empty(t, a.Roles)
	})

	t.Run("structured payload", func(t *testing.T) {
		a := ParseFlowAction(`{"flowId":"release","roles":["reviewer","tester"]}`)
		assert.Equal(t, "release", a.FlowID)
		assert.Equal(t, []string{"reviewer", "tester"}, a.Roles)
	})

	t.Run("json without flowId is literal", func(t *testing.T) {
		text := `{"name":"release"}`
		a := ParseFlowAction(text)
		assert.Equal(t, text, a.FlowID)
	})
}

func TestParseAction_Jules(t *testing.T) {
	a, err := ParseAction(TaskTypeJules, `{"prompt":"fix tests","source":"sources/github/acme/app","autoApprove":false}`)
	require.NoError(t, err)
	jules, ok := a.(*JulesAction)
	require.True(t, ok)
	assert.Equal(t, "fix tests", jules.Prompt)
	assert.False(t, jules.ShouldApprove())

	_, err = ParseAction(TaskTypeJules, "not json")
	assert.Error(t, err)
}

func TestJulesAction_ShouldApproveDefaultsTrue(t *testing.T) {
	assert.True(t, (&JulesAction{Prompt: "x"}).ShouldApprove())
	yes := true
	assert.True(t, (&JulesAction{Prompt: "x", AutoApprove: &yes}).ShouldApprove())
}

func TestScheduledTask_JSONShapes(t *testing.T) {
	interval := 30
	lastRun := int64(1_700_000_000_000)
	task := ScheduledTask{
		ID:              "t-1",
		Name:            "sync",
		Type:            TaskTypeFlow,
		Action:          &FlowAction{FlowID: "sync", Roles: []string{"ops"}},
		Schedule:        ScheduleInterval,
		IntervalSeconds: &interval,
		NextRun:         1_700_000_030_000,
		LastRun:         &lastRun,
		LastResult:      "Success",
		Status:          TaskStatusActive,
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":{"flowId":"sync","roles":["ops"]}`)

	var decoded ScheduledTask
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, task, decoded)
}

func TestScheduledTask_DecodesLegacyStringPayloads(t *testing.T) {
	data := `[
		{"id":"a","name":"a","type":"command","action":"echo hi","schedule":"once","nextRun":1,"status":"active"},
		{"id":"b","name":"b","type":"flow","action":"{\"flowId\":\"deploy\",\"roles\":[\"ops\"]}","schedule":"daily","nextRun":1,"status":"active"},
		{"id":"c","name":"c","type":"jules","action":"{broken","schedule":"once","nextRun":1,"status":"active"}
	]`
	var tasks []ScheduledTask
	require.NoError(t, json.Unmarshal([]byte(data), &tasks))
	require.Len(t, tasks, 3)

	assert.Equal(t, &CommandAction{Command: "echo hi"}, tasks[0].Action)
	assert.Equal(t, &FlowAction{FlowID: "deploy", Roles: []string{"ops"}}, tasks[1].Action)

	invalid, ok := tasks[2].Action.(*InvalidAction)
	require.True(t, ok)
	assert.Equal(t, TaskTypeJules, invalid.Type())
	assert.NotEmpty(t, invalid.Reason)
}

func TestDecodeAction_FlowObjectWithoutStringIDIsLiteral(t *testing.T) {
	cases := map[string]string{
		"missing flowId":    `{"roles":["qa"]}`,
		"non-string flowId": `{"flowId":5}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			a, err := DecodeAction(TaskTypeFlow, json.RawMessage(raw))
			require.NoError(t, err)
			assert.Equal(t, &FlowAction{FlowID: raw}, a)
		})
	}

	a, err := DecodeAction(TaskTypeFlow, json.RawMessage(`{"flowId":"deploy","roles":["ops"]}`))
	require.NoError(t, err)
	assert.Equal(t, &FlowAction{FlowID: "deploy", Roles: []string{"ops"}}, a)
}

func TestTaskSpecValidate(t *testing.T) {
	n := 10
	zero := 0
	valid := TaskSpec{Name: "x", Action: &CommandAction{Command: "true"}, Schedule: ScheduleOnce}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		spec TaskSpec
	}{
		{"missing name", TaskSpec{Action: &CommandAction{Command: "true"}, Schedule: ScheduleOnce}},
		{"missing action", TaskSpec{Name: "x", Schedule: ScheduleOnce}},
		{"empty command", TaskSpec{Name: "x", Action: &CommandAction{}, Schedule: ScheduleOnce}},
		{"unknown schedule", TaskSpec{Name: "x", Action: &CommandAction{Command: "true"}, Schedule: "yearly"}},
		{"interval without seconds", TaskSpec{Name: "x", Action: &CommandAction{Command: "true"}, Schedule: ScheduleInterval}},
		{"interval zero", TaskSpec{Name: "x", Action: &CommandAction{Command: "true"}, Schedule: ScheduleInterval, IntervalSeconds: &zero}},
		{"seconds without interval", TaskSpec{Name: "x", Action: &CommandAction{Command: "true"}, Schedule: ScheduleDaily, IntervalSeconds: &n}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestTruncateResult(t *testing.T) {
	assert.Equal(t, "Success", TruncateResult("Success"))

	exact := strings.Repeat("a", MaxResultLength)
	assert.Equal(t, exact, TruncateResult(exact))

	long := TruncateResult(strings.Repeat("é", 500))
	assert.Equal(t, MaxResultLength+3, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestCloneDoesNotShareState(t *testing.T) {
	n := 5
	orig := ScheduledTask{
		ID:              "x",
		Action:          &FlowAction{FlowID: "f", Roles: []string{"a"}},
		IntervalSeconds: &n,
	}
	c := orig.Clone()
	*c.IntervalSeconds = 99
	c.Action.(*FlowAction).Roles[0] = "b"

	assert.Equal(t, 5, *orig.IntervalSeconds)
	assert.Equal(t, "a", orig.Action.(*FlowAction).Roles[0])
}

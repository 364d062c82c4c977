package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovareai/sam-funnel-engine/internal/logging"
	"github.com/innovareai/sam-funnel-engine/pkg/models"
)

func newFunnelFixture() (*FunnelService, *fakeClient, *fakeFunnelStore, *fakeExecutionStore) {
	client := &fakeClient{nextWorkflow: "wf-1", nextExec: "exec-1"}
	funnels := newFakeFunnelStore()
	executions := newFakeExecutionStore(nil)
	svc := NewFunnelService(client, funnels, executions, logging.NewLoggerAt(logging.LevelError))
	return svc, client, funnels, executions
}

func templateWithPlaceholders() *models.CoreFunnelTemplate {
	return &models.CoreFunnelTemplate{
		ID:         "tmpl-1",
		FunnelKind: "signature_outreach",
		Name:       "Signature Outreach",
		Definition: &models.WorkflowDefinition{
			Name: "{{campaign_name}} Outreach",
			Nodes: []models.WorkflowNode{
				{
					ID:   "step_1",
					Name: "Send Message 1",
					Type: "n8n-nodes-base.httpRequest",
					Parameters: map[string]interface{}{
						"greeting": "Hi, this is {{sender_name}}",
					},
				},
			},
		},
		StepCount: 1,
		IsActive:  true,
	}
}

func TestDeployCoreTemplateSubstitutesAndRecordsWorkflow(t *testing.T) {
	svc, client, funnels, _ := newFunnelFixture()
	ctx := context.Background()
	require.NoError(t, funnels.CreateTemplate(ctx, templateWithPlaceholders()))

	workflowID, err := svc.DeployCoreTemplate(ctx, "tmpl-1", map[string]string{
		"campaign_name": "Q2 Fintech",
		"sender_name":   "Dana",
	})
	require.NoError(t, err)
	assert.Equal(t, "wf-1", workflowID)

	require.Len(t, client.deployed, 1)
	deployed := client.deployed[0]
	assert.Equal(t, "Q2 Fintech Outreach", deployed.Name)
	assert.Equal(t, "Hi, this is Dana", deployed.Nodes[0].Parameters["greeting"])

	tmpl, err := funnels.GetTemplate(ctx, "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", tmpl.WorkflowID)
}

func TestExecuteCoreRequiresDeployedTemplate(t *testing.T) {
	svc, _, funnels, _ := newFunnelFixture()
	ctx := context.Background()
	require.NoError(t, funnels.CreateTemplate(ctx, templateWithPlaceholders()))

	_, err := svc.ExecuteCore(ctx, "tmpl-1", "c-1", []models.ProspectData{{ID: "p-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not deployed")
}

func TestExecuteCoreCreatesRunningRecord(t *testing.T) {
	svc, client, funnels, executions := newFunnelFixture()
	ctx := context.Background()

	tmpl := templateWithPlaceholders()
	tmpl.WorkflowID = "wf-1"
	require.NoError(t, funnels.CreateTemplate(ctx, tmpl))

	prospects := []models.ProspectData{{ID: "p-1"}, {ID: "p-2"}, {ID: "p-3"}}
	exec, err := svc.ExecuteCore(ctx, "tmpl-1", "c-1", prospects)
	require.NoError(t, err)

	assert.Equal(t, []string{"wf-1"}, client.executed)
	assert.Equal(t, models.FunnelTypeCore, exec.FunnelType)
	assert.Equal(t, "exec-1", exec.BackendExecutionID)
	assert.Equal(t, models.FunnelExecutionRunning, exec.Status)
	assert.Equal(t, 3, exec.ProspectsTotal)
	assert.NotEmpty(t, exec.ID)

	stored, err := executions.GetExecution(ctx, models.FunnelTypeCore, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, exec.ID, stored.ID)
}

func TestCreateDynamicDeploysAndPersists(t *testing.T) {
	svc, client, funnels, _ := newFunnelFixture()
	ctx := context.Background()

	def := &models.DynamicFunnelDefinition{
		CampaignID:   "c-1",
		Name:         "Adaptive Fintech Sequence",
		CreatedBySam: true,
		Definition: &models.WorkflowDefinition{
			Name:  "Adaptive Fintech Sequence",
			Nodes: []models.WorkflowNode{{ID: "step_1", Name: "Opener", Type: "n8n-nodes-base.httpRequest"}},
		},
	}

	require.NoError(t, svc.CreateDynamic(ctx, def))
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "wf-1", def.WorkflowID)
	assert.Len(t, client.deployed, 1)

	stored, err := funnels.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", stored.WorkflowID)

	// a deployed dynamic definition classifies its workflow id
	funnelType, err := funnels.Classify(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.FunnelTypeDynamic, funnelType)
}

func TestExecuteDynamicStartsAtStepOne(t *testing.T) {
	svc, _, funnels, _ := newFunnelFixture()
	ctx := context.Background()

	require.NoError(t, funnels.CreateDefinition(ctx, &models.DynamicFunnelDefinition{
		ID:         "def-1",
		CampaignID: "c-1",
		WorkflowID: "wf-dyn",
	}))

	exec, err := svc.ExecuteDynamic(ctx, "def-1", "c-1", []models.ProspectData{{ID: "p-1"}})
	require.NoError(t, err)
	assert.Equal(t, models.FunnelTypeDynamic, exec.FunnelType)
	assert.Equal(t, 1, exec.CurrentStep)
	assert.Equal(t, "def-1", exec.DefinitionID)
}

func TestRewriteDynamicUpdatesDeployedWorkflow(t *testing.T) {
	svc, client, funnels, _ := newFunnelFixture()
	ctx := context.Background()

	require.NoError(t, funnels.CreateDefinition(ctx, &models.DynamicFunnelDefinition{
		ID:         "def-1",
		CampaignID: "c-1",
		WorkflowID: "wf-dyn",
	}))

	rewritten := &models.WorkflowDefinition{
		Name:  "Rewritten Sequence",
		Nodes: []models.WorkflowNode{{ID: "step_1", Name: "New Opener", Type: "n8n-nodes-base.httpRequest"}},
	}
	require.NoError(t, svc.RewriteDynamic(ctx, "def-1", rewritten))
	assert.Equal(t, []string{"wf-dyn"}, client.updated)
}

func TestRewriteDynamicRequiresDeployedDefinition(t *testing.T) {
	svc, client, funnels, _ := newFunnelFixture()
	ctx := context.Background()

	require.NoError(t, funnels.CreateDefinition(ctx, &models.DynamicFunnelDefinition{
		ID:         "def-1",
		CampaignID: "c-1",
	}))

	err := svc.RewriteDynamic(ctx, "def-1", &models.WorkflowDefinition{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not deployed")
	assert.Empty(t, client.updated)
}

func TestSubstituteVariables(t *testing.T) {
	def := &models.WorkflowDefinition{
		Name: "{{campaign_name}}",
		Nodes: []models.WorkflowNode{
			{
				ID:   "a",
				Name: "A",
				Type: "t",
				Parameters: map[string]interface{}{
					"subject": "{{subject}}",
					"body":    "{{greeting}} {{greeting}}",
					"static":  "untouched",
				},
			},
		},
	}

	out, err := SubstituteVariables(def, map[string]string{
		"campaign_name": "Spring Launch",
		"subject":       `He said "hello"`,
		"greeting":      "Hi there",
	})
	require.NoError(t, err)

	assert.Equal(t, "Spring Launch", out.Name)
	assert.Equal(t, `He said "hello"`, out.Nodes[0].Parameters["subject"])
	assert.Equal(t, "Hi there Hi there", out.Nodes[0].Parameters["body"])
	assert.Equal(t, "untouched", out.Nodes[0].Parameters["static"])

	// the input definition is not mutated
	assert.Equal(t, "{{campaign_name}}", def.Name)
}

func TestStopExecutionDelegatesToBackend(t *testing.T) {
	svc, client, _, _ := newFunnelFixture()

	stopped, err := svc.StopExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []string{"exec-1"}, client.stopped)
}

func TestExecutionLogsReturnsBackendRunData(t *testing.T) {
	svc, client, _, _ := newFunnelFixture()
	client.runData = map[string]interface{}{
		"Send Message 1": []interface{}{map[string]interface{}{"status": "success"}},
	}

	logs, err := svc.ExecutionLogs(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Contains(t, logs, "Send Message 1")
}

func TestListWorkflowsReturnsBackendInventory(t *testing.T) {
	svc, client, _, _ := newFunnelFixture()
	client.workflows = []models.WorkflowSummary{
		{ID: "wf-1", Name: "Signature Outreach", Active: true},
		{ID: "wf-2", Name: "Retired Sequence", Active: false},
	}

	workflows, err := svc.ListWorkflows(context.Background())
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "wf-1", workflows[0].ID)
	assert.True(t, workflows[0].Active)
}

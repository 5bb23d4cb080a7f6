package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge/domain/card"
	"github.com/cardforge/cardforge/domain/event"
	"github.com/cardforge/cardforge/domain/loopcfg"
	"github.com/cardforge/cardforge/platform"
)

type fakeLoops struct {
	started, paused, stopped int
	startErr                 error
}

func (f *fakeLoops) StartLoop(ctx context.Context, cardID string, cfg loopcfg.Config) (*loopcfg.State, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started++
	return loopcfg.New(cardID, cfg), nil
}
func (f *fakeLoops) PauseLoop(cardID string) (*loopcfg.State, error) {
	f.paused++
	return &loopcfg.State{CardID: cardID}, nil
}
func (f *fakeLoops) StopLoop(cardID string) (*loopcfg.State, error) {
	f.stopped++
	return &loopcfg.State{CardID: cardID, StopReason: &loopcfg.StopReason{Kind: loopcfg.StopUserStopped}}, nil
}

type fakeAgentRegistrar struct{ registered int }

func (f *fakeAgentRegistrar) Register(cardID, worktreePath, prompt string, cfg platform.SessionConfig) {
	f.registered++
}

type fakeGit struct{ worktrees, pushes int }

func (f *fakeGit) CreateWorktree(ctx context.Context, cardID string) (string, string, error) {
	f.worktrees++
	return "card/" + cardID, "/tmp/wt/" + cardID, nil
}
func (f *fakeGit) Push(ctx context.Context, worktreePath, branch string) (string, error) {
	f.pushes++
	return "https://example.com/compare/" + branch, nil
}

type fakeIntegrations struct {
	buildTriggered, deployTriggered int
	monitorBuildTrigger             *card.Trigger
}

func (f *fakeIntegrations) TriggerBuild(ctx context.Context, c *card.WithFlags) error {
	f.buildTriggered++
	return nil
}
func (f *fakeIntegrations) MonitorBuild(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	return f.monitorBuildTrigger, nil
}
func (f *fakeIntegrations) TriggerDeploy(ctx context.Context, c *card.WithFlags) error {
	f.deployTriggered++
	return nil
}
func (f *fakeIntegrations) MonitorArgoCD(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	return nil, nil
}
func (f *fakeIntegrations) RunHealthChecks(ctx context.Context, c *card.WithFlags) (*card.Trigger, error) {
	return nil, nil
}
func (f *fakeIntegrations) CollectErrorContext(ctx context.Context, c *card.WithFlags) (*card.CardError, error) {
	return &card.CardError{ID: "err-1", CardID: c.ID, Type: "build", Message: "boom", Category: card.ErrorCategoryBuild}, nil
}

type fakeRepo struct {
	updated []card.Card
	errors  []card.CardError
}

func (f *fakeRepo) UpdateCard(ctx context.Context, c *card.Card) error {
	f.updated = append(f.updated, *c)
	return nil
}
func (f *fakeRepo) CreateCardError(ctx context.Context, e *card.CardError) error {
	f.errors = append(f.errors, *e)
	return nil
}

type fakeTransitioner struct{ applied []card.Trigger }

func (f *fakeTransitioner) ApplyTrigger(ctx context.Context, cardID string, trigger card.Trigger) error {
	f.applied = append(f.applied, trigger)
	return nil
}

type fakeEvents struct{ events []event.Event }

func (f *fakeEvents) Publish(e event.Event) { f.events = append(f.events, e) }

type fakeMetrics struct{ recorded int }

func (f *fakeMetrics) RecordForCard(cardID string) { f.recorded++ }

func newTestExecutor() (*Executor, *fakeLoops, *fakeGit, *fakeIntegrations, *fakeRepo, *fakeTransitioner, *fakeEvents) {
	loops := &fakeLoops{}
	git := &fakeGit{}
	integrations := &fakeIntegrations{}
	repo := &fakeRepo{}
	transitioner := &fakeTransitioner{}
	events := &fakeEvents{}
	e := New(loops, &fakeAgentRegistrar{}, git, nil, integrations, repo, transitioner, events, &fakeMetrics{}, nil)
	return e, loops, git, integrations, repo, transitioner, events
}

func testCard() *card.WithFlags {
	return &card.WithFlags{Card: card.Card{ID: "card-1", TaskPrompt: "do the thing"}}
}

func TestExecuteCreateGitWorktreePersistsAndPublishes(t *testing.T) {
	e, _, git, _, repo, _, events := newTestExecutor()
	c := testCard()

	err := e.Execute(context.Background(), c, []card.Action{card.ActionCreateGitWorktree})
	require.NoError(t, err)
	assert.Equal(t, 1, git.worktrees)
	assert.Equal(t, "card/card-1", c.BranchName)
	require.Len(t, repo.updated, 1)
	require.Len(t, events.events, 1)
	assert.Equal(t, event.TypeWorktreeCreated, events.events[0].Type)
}

type fakeConfigSyncer struct{ syncedCardID, syncedDir string }

func (f *fakeConfigSyncer) Sync(ctx context.Context, cardID, configDir string) (event.Event, error) {
	f.syncedCardID = cardID
	f.syncedDir = configDir
	return event.NewConfigSynced(cardID, true, 2, true), nil
}

func TestExecuteCreateGitWorktreeSyncsConfigWhenSyncerConfigured(t *testing.T) {
	loops := &fakeLoops{}
	git := &fakeGit{}
	syncer := &fakeConfigSyncer{}
	e := New(loops, &fakeAgentRegistrar{}, git, syncer, &fakeIntegrations{}, &fakeRepo{}, &fakeTransitioner{}, &fakeEvents{}, &fakeMetrics{}, nil)
	c := testCard()

	events := &fakeEvents{}
	e.events = events

	err := e.Execute(context.Background(), c, []card.Action{card.ActionCreateGitWorktree})
	require.NoError(t, err)
	assert.Equal(t, "card-1", syncer.syncedCardID)
	require.Len(t, events.events, 2)
	assert.Equal(t, event.TypeWorktreeCreated, events.events[0].Type)
	assert.Equal(t, event.TypeConfigSynced, events.events[1].Type)
}

func TestExecuteStartLoopRegistersAgentAndPublishes(t *testing.T) {
	e, loops, _, _, _, _, events := newTestExecutor()
	registrar := &fakeAgentRegistrar{}
	e.agent = registrar
	c := testCard()

	err := e.Execute(context.Background(), c, []card.Action{card.ActionStartLoop})
	require.NoError(t, err)
	assert.Equal(t, 1, registrar.registered)
	assert.Equal(t, 1, loops.started)
	require.Len(t, events.events, 1)
	assert.Equal(t, event.TypeLoopStarted, events.events[0].Type)
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	loops := &fakeLoops{}
	c := testCard()

	// No GitClient configured, so CreatePullRequest fails and StartLoop
	// (listed after it) must never run.
	noGit := New(loops, &fakeAgentRegistrar{}, nil, nil, &fakeIntegrations{}, &fakeRepo{}, &fakeTransitioner{}, &fakeEvents{}, &fakeMetrics{}, nil)
	err := noGit.Execute(context.Background(), c, []card.Action{card.ActionCreatePullRequest, card.ActionStartLoop})
	require.Error(t, err)
	assert.Equal(t, 0, loops.started)
}

func TestExecuteMonitorBuildFeedsSyntheticTriggerBack(t *testing.T) {
	trigger := card.TriggerBuildSucceeded
	loops := &fakeLoops{}
	integrations := &fakeIntegrations{monitorBuildTrigger: &trigger}
	transitioner := &fakeTransitioner{}
	e := New(loops, &fakeAgentRegistrar{}, &fakeGit{}, nil, integrations, &fakeRepo{}, transitioner, &fakeEvents{}, &fakeMetrics{}, nil)
	c := testCard()

	err := e.Execute(context.Background(), c, []card.Action{card.ActionMonitorBuild})
	require.NoError(t, err)
	require.Len(t, transitioner.applied, 1)
	assert.Equal(t, card.TriggerBuildSucceeded, transitioner.applied[0])
}

func TestExecuteCollectErrorContextPersistsAndPublishes(t *testing.T) {
	e, _, _, _, repo, _, events := newTestExecutor()
	c := testCard()

	err := e.Execute(context.Background(), c, []card.Action{card.ActionCollectErrorContext})
	require.NoError(t, err)
	require.Len(t, repo.errors, 1)
	assert.Equal(t, "err-1", repo.errors[0].ID)
	require.Len(t, events.events, 1)
	assert.Equal(t, event.TypeErrorDetected, events.events[0].Type)
}

func TestExecuteNotifyUserAndRecordMetricsPublishEvents(t *testing.T) {
	e, _, _, _, _, _, events := newTestExecutor()
	c := testCard()

	err := e.Execute(context.Background(), c, []card.Action{card.ActionNotifyUser, card.ActionRecordMetrics})
	require.NoError(t, err)
	require.Len(t, events.events, 2)
	assert.Equal(t, event.TypeUserNotification, events.events[0].Type)
	assert.Equal(t, event.TypeMetricsRecorded, events.events[1].Type)
}

func TestCompareURLHandlesSSHAndHTTPSRemotes(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/widgets/compare/card/abc123",
		compareURL("git@github.com:acme/widgets.git", "card/abc123"))
	assert.Equal(t, "https://github.com/acme/widgets/compare/card/abc123",
		compareURL("https://github.com/acme/widgets.git", "card/abc123"))
}

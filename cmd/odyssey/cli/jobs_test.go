package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-assets/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "abc", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return s.info, nil }

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (s stubInspector) Close() error { return nil }

func TestCalculateCommandJSON(t *testing.T) {
	client := &stubClient{}
	cli := NewJobsCLIWith(client, stubInspector{})

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := cli.CalculateCommand(context.Background(), CalculateOptions{
		CompanyID:  3,
		Period:     "2024-05",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary enqueueSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, jobs.TaskDepreciationCalculate, summary.Type)

	require.Len(t, client.tasks, 1)
	var payload jobs.DepreciationCalculatePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, jobs.DepreciationCalculatePayload{CompanyID: 3, Year: 2024, Month: 5}, payload)
}

func TestCalculateCommandRejectsBadInput(t *testing.T) {
	cli := NewJobsCLIWith(&stubClient{}, stubInspector{})
	stderr := new(bytes.Buffer)

	code := cli.CalculateCommand(context.Background(), CalculateOptions{CompanyID: 1, Period: "202401", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid period")

	stderr.Reset()
	code = cli.CalculateCommand(context.Background(), CalculateOptions{Period: "2024-01", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "--company")
}

func TestCalculateCommandDuplicate(t *testing.T) {
	cli := NewJobsCLIWith(&stubClient{err: asynq.ErrDuplicateTask}, stubInspector{})
	stderr := new(bytes.Buffer)
	code := cli.CalculateCommand(context.Background(), CalculateOptions{CompanyID: 1, Period: "2024-01", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "already queued")
}

func TestScheduleCommandDefaultsToPreviousMonth(t *testing.T) {
	client := &stubClient{}
	cli := NewJobsCLIWith(client, stubInspector{})
	stdout := new(bytes.Buffer)
	code := cli.ScheduleCommand(context.Background(), ScheduleOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), jobs.TaskDepreciationSchedule)

	require.Len(t, client.tasks, 1)
	var payload jobs.DepreciationSchedulePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Zero(t, payload.Year)
	require.Zero(t, payload.Month)
}

func TestInspectQueue(t *testing.T) {
	cli := NewJobsCLIWith(&stubClient{}, stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}})
	stats, err := cli.InspectQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Scheduled)
}

package actionclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	got    []Payload
	result *Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, p Payload) (*Result, error) {
	f.got = append(f.got, p)
	return f.result, f.err
}

func TestSessionHandleReply(t *testing.T) {
	t.Run("plain reply is passed through", func(t *testing.T) {
		exec := &fakeExecutor{}
		s := NewSession(exec, "America/Chicago")

		out := s.HandleReply(context.Background(), "You have no appointments today.")
		assert.Equal(t, Outcome{Text: "You have no appointments today."}, out)
		assert.Empty(t, exec.got)
	})

	t.Run("embedded action is executed with the session timezone", func(t *testing.T) {
		exec := &fakeExecutor{result: &Result{Action: "create_reminder", EntityID: "rem-1", Message: "Reminder created"}}
		s := NewSession(exec, "America/Chicago")

		out := s.HandleReply(context.Background(), "Reminder set.\n```json\n{\"action\":\"create_reminder\",\"params\":{\"title\":\"Call Jane\"}}\n```")
		require.True(t, out.Executed)
		assert.Equal(t, "Reminder set.", out.Text)
		assert.Equal(t, "rem-1", out.Result.EntityID)
		assert.Nil(t, out.Err)

		require.Len(t, exec.got, 1)
		assert.Equal(t, "America/Chicago", exec.got[0].Timezone)
		assert.Equal(t, []Result{*exec.result}, s.Executed())
	})

	t.Run("reply that is only an action shows the result message", func(t *testing.T) {
		exec := &fakeExecutor{result: &Result{Message: "Invoice marked paid"}}
		s := NewSession(exec, "")

		out := s.HandleReply(context.Background(), `{"action":"mark_invoice_paid","params":{"invoice_id":"inv-1"},"timezone":"UTC"}`)
		assert.Equal(t, "Invoice marked paid", out.Text)
		assert.Equal(t, "UTC", exec.got[0].Timezone)
	})

	t.Run("failure keeps the prose and reports a friendly error", func(t *testing.T) {
		exec := &fakeExecutor{err: errors.New("access denied for client")}
		s := NewSession(exec, "")

		out := s.HandleReply(context.Background(), `Updating now. {"action":"update_client","params":{"client_name":"Jane"}}`)
		assert.False(t, out.Executed)
		assert.Equal(t, "Updating now.", out.Text)
		require.NotNil(t, out.Err)
		assert.Equal(t, CategoryPermission, out.Err.Category)
		assert.Empty(t, s.Executed())
	})
}

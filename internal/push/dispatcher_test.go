package push

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/matching"
	"github.com/openvolunteer/volmatch/internal/store"
)

type stubNotificationStore struct {
	exists    bool
	existsErr error
	inserted  bool
	insertErr error

	recorded bool
	gotWhy   string
}

func (s *stubNotificationStore) NotificationExists(context.Context, string, string) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubNotificationStore) RecordNotification(_ context.Context, _, _ string, whyRelevant string) (bool, error) {
	s.recorded = true
	s.gotWhy = whyRelevant
	return s.inserted, s.insertErr
}

type stubSender struct {
	err  error
	sent []*Message
}

func (s *stubSender) Send(_ context.Context, msg *Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func dispatchArgs() (*store.Need, *store.Member) {
	need := &store.Need{ID: "need-1", Title: "Community garden"}
	member := &store.Member{ID: "m-1", PushToken: "ExponentPushToken[abc]"}
	return need, member
}

func TestDispatchSendsAndRecords(t *testing.T) {
	st := &stubNotificationStore{inserted: true}
	sender := &stubSender{}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "gardening skills match")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != matching.DispatchSent {
		t.Errorf("outcome = %v, want DispatchSent", outcome)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != member.PushToken {
		t.Errorf("To = %q, want the member's push token", msg.To)
	}
	if msg.Body != "gardening skills match" {
		t.Errorf("Body = %q, want the justification", msg.Body)
	}
	if msg.Data["needId"] != need.ID {
		t.Errorf("Data.needId = %q, want %q", msg.Data["needId"], need.ID)
	}

	if !st.recorded || st.gotWhy != "gardening skills match" {
		t.Errorf("recorded = %v why = %q, want the justification persisted", st.recorded, st.gotWhy)
	}
}

func TestDispatchAlreadySentShortCircuits(t *testing.T) {
	st := &stubNotificationStore{exists: true}
	sender := &stubSender{}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "why")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != matching.DispatchAlreadySent {
		t.Errorf("outcome = %v, want DispatchAlreadySent", outcome)
	}
	if len(sender.sent) != 0 {
		t.Error("an existing notification still reached the provider")
	}
	if st.recorded {
		t.Error("an existing notification was recorded again")
	}
}

func TestDispatchProviderFailure(t *testing.T) {
	st := &stubNotificationStore{}
	sender := &stubSender{err: errors.New("provider 503")}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "why")
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != matching.DispatchFailed {
		t.Errorf("outcome = %v, want DispatchFailed", outcome)
	}
	if st.recorded {
		t.Error("a failed send was recorded as a notification")
	}
}

func TestDispatchLostInsertRace(t *testing.T) {
	// Send succeeded but the unique constraint says another run got there
	// first: report AlreadySent so no budget slot stays reserved.
	st := &stubNotificationStore{inserted: false}
	sender := &stubSender{}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "why")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != matching.DispatchAlreadySent {
		t.Errorf("outcome = %v, want DispatchAlreadySent", outcome)
	}
}

func TestDispatchRecordFailureAfterSend(t *testing.T) {
	st := &stubNotificationStore{insertErr: errors.New("connection reset")}
	sender := &stubSender{}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "why")
	if err == nil {
		t.Fatal("expected the recording failure to surface")
	}
	if outcome != matching.DispatchFailed {
		t.Errorf("outcome = %v, want DispatchFailed", outcome)
	}
}

func TestDispatchExistsCheckFailure(t *testing.T) {
	st := &stubNotificationStore{existsErr: errors.New("connection reset")}
	sender := &stubSender{}
	d := NewDispatcher(st, sender, zap.NewNop())

	need, member := dispatchArgs()
	outcome, err := d.Dispatch(context.Background(), need, member, "why")
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != matching.DispatchFailed {
		t.Errorf("outcome = %v, want DispatchFailed", outcome)
	}
	if len(sender.sent) != 0 {
		t.Error("a failed idempotency check still reached the provider")
	}
}
